package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/policy"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	"github.com/Gopher0727/StudyGroup/utils/snowflake"
)

func newTestLedger(t *testing.T) (*Ledger, *repositories.MemoryStore, *models.StudyGroup, *clock.Fixed) {
	t.Helper()
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	g := &models.StudyGroup{UUID: "g-1", Name: "g", MemberLimit: 3, Title: "t", Content: "c"}
	require.NoError(t, store.CreateGroup(ctx, g))
	require.NoError(t, store.CreateMember(ctx, &models.Member{StudyGroupID: g.ID, UserID: userA, IsLeader: true}))

	ids, err := snowflake.NewGenerator(0, 0)
	require.NoError(t, err)
	clk := clock.NewFixed(clock.Date(2025, time.March, 10))
	return NewLedger(ids, clk), store, g, clk
}

func openSnapshot(clk clock.Clock, count int) policy.Snapshot {
	return policy.Snapshot{Deadline: clk.Today().AddDate(0, 0, 1), Capacity: 3, MemberCount: count}
}

func TestLedgerSubmit(t *testing.T) {
	ctx := context.Background()
	l, store, g, clk := newTestLedger(t)

	closed := openSnapshot(clk, 3)
	_, err := l.Submit(ctx, store, userB, g.ID, closed, "hi")
	assert.ErrorIs(t, err, ErrGroupClosed)

	// 已关闭优先于已是成员
	_, err = l.Submit(ctx, store, userA, g.ID, closed, "hi")
	assert.ErrorIs(t, err, ErrGroupClosed)

	_, err = l.Submit(ctx, store, userA, g.ID, openSnapshot(clk, 1), "hi")
	assert.ErrorIs(t, err, ErrAlreadyMember)

	r, err := l.Submit(ctx, store, userB, g.ID, openSnapshot(clk, 1), "hi")
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.False(t, r.Processed)
	assert.False(t, r.IsApproved)

	_, err = l.Submit(ctx, store, userB, g.ID, openSnapshot(clk, 1), "again")
	assert.ErrorIs(t, err, ErrDuplicatePending)
}

func TestLedgerListPendingOrder(t *testing.T) {
	ctx := context.Background()
	l, store, g, clk := newTestLedger(t)

	var ids []int64
	for _, u := range []uint{userB, userC, userD} {
		r, err := l.Submit(ctx, store, u, g.ID, openSnapshot(clk, 1), "hi")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	_, err := l.Decide(ctx, store, userA, ids[1], Reject)
	require.NoError(t, err)

	pending, err := l.ListPending(ctx, store, g.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	// 重复读取结果一致
	again, err := l.ListPending(ctx, store, g.ID)
	require.NoError(t, err)
	assert.Equal(t, pending, again)
}

func TestLedgerDecide(t *testing.T) {
	ctx := context.Background()
	l, store, g, clk := newTestLedger(t)

	r, err := l.Submit(ctx, store, userB, g.ID, openSnapshot(clk, 1), "hi")
	require.NoError(t, err)

	decided, err := l.Decide(ctx, store, userA, r.ID, Approve)
	require.NoError(t, err)
	assert.True(t, decided.Processed)
	assert.True(t, decided.IsApproved)
	require.NotNil(t, decided.ProcessedBy)
	assert.Equal(t, userA, *decided.ProcessedBy)
	assert.NotNil(t, decided.ProcessedAt)

	_, err = l.Decide(ctx, store, userA, r.ID, Reject)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = l.Decide(ctx, store, userA, 12345, Approve)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	// 批准不创建成员
	n, err := store.CountMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "approve", Approve.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "unknown", Decision(9).String())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "group_closed", Outcome(ErrGroupClosed))
	assert.Equal(t, "validation", Outcome(fieldError("name", "不能为空")))
	assert.Equal(t, "validation", Outcome(&policy.CapacityError{Capacity: 1}))
	assert.Equal(t, "error", Outcome(assert.AnError))
	assert.True(t, IsDomainError(ErrLastLeader))
	assert.False(t, IsDomainError(assert.AnError))
}
