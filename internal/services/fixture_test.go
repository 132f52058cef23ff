package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/internal/cache"
	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/events"
	"github.com/Gopher0727/StudyGroup/internal/metrics"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	"github.com/Gopher0727/StudyGroup/utils/snowflake"
)

const (
	userA uint = 1
	userB uint = 2
	userC uint = 3
	userD uint = 4
)

var testCategories = []string{"개발", "어학"}

type fixture struct {
	store   *repositories.MemoryStore
	clock   *clock.Fixed
	events  *events.Recorder
	metrics *metrics.Metrics
	svc     *EnrollmentService
	query   *GroupQueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, cache.Noop{})
}

func newFixtureWithCache(t *testing.T, c GroupCache) *fixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	require.NoError(t, store.EnsureCategories(context.Background(), testCategories))

	ids, err := snowflake.NewGenerator(0, 1)
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		clock:   clock.NewFixed(clock.Date(2025, time.March, 10)),
		events:  events.NewRecorder(),
		metrics: metrics.New(),
	}
	guard := NewMemberGuard()
	f.svc = NewEnrollmentService(store, f.clock, guard, NewLedger(ids, f.clock), f.events, f.metrics, nil)
	f.query = NewGroupQueryService(store, f.clock, guard, c, nil)
	return f
}

func (f *fixture) day(offset int) string {
	return f.clock.Today().AddDate(0, 0, offset).Format(DateLayout)
}

// createReq capacity 个名额，截止 +3 天，活动 +7 至 +14 天
func (f *fixture) createReq(capacity int) *CreateGroupRequest {
	return &CreateGroupRequest{
		Name:        "Go 学习小组",
		MemberLimit: capacity,
		Deadline:    f.day(3),
		StartDate:   f.day(7),
		EndDate:     f.day(14),
		Title:       "每周读一章",
		Content:     "<p>一起读 <b>Go 语言圣经</b></p>",
		Categories:  []string{"개발"},
		Tags:        []string{"go", "backend"},
	}
}

func (f *fixture) createGroup(t *testing.T, owner uint, capacity int) *GroupDetail {
	t.Helper()
	d, err := f.svc.CreateGroup(context.Background(), owner, f.createReq(capacity))
	require.NoError(t, err)
	return d
}

func (f *fixture) join(t *testing.T, user uint, groupUUID string) *RequestView {
	t.Helper()
	r, err := f.svc.RequestJoin(context.Background(), user, groupUUID, "hi")
	require.NoError(t, err)
	return r
}

func (f *fixture) memberCount(t *testing.T, groupUUID string) int {
	t.Helper()
	ctx := context.Background()
	g, err := f.store.GetGroupByUUID(ctx, groupUUID)
	require.NoError(t, err)
	n, err := f.store.CountMembers(ctx, g.ID)
	require.NoError(t, err)
	return n
}

func (f *fixture) operations(t *testing.T, op, outcome string) float64 {
	t.Helper()
	families, err := f.metrics.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "studygroup_enrollment_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
