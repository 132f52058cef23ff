package repositories

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/storage"
)

// newGormStore 连接 STUDYGROUP_TEST_POSTGRES_DSN 指向的数据库，未设置或不可达时跳过
func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := os.Getenv("STUDYGROUP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STUDYGROUP_TEST_POSTGRES_DSN not set, skipping postgres integration test")
	}
	db, err := storage.OpenPostgres(dsn, 5, 20)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	return NewGormStore(db)
}

func TestGormStore_GroupLifecycle(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	g := seedGroup(t, s, uuid.NewString())

	got, err := s.GetGroupByUUID(ctx, g.UUID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev"}, got.CategoryNames())

	tags, err := s.FirstOrCreateTags(ctx, []string{"go-" + g.UUID[:8]})
	require.NoError(t, err)
	got.Tags = tags
	got.Title = "updated"
	require.NoError(t, s.SaveGroup(ctx, got))

	again, err := s.GetGroupByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", again.Title)
	assert.Len(t, again.Tags, 1)

	require.NoError(t, s.DeleteGroup(ctx, g.ID))
	_, err = s.GetGroupByID(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_UniqueConstraints(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	g := seedGroup(t, s, uuid.NewString())
	defer func() {
		_ = s.DeleteRequestsByGroup(ctx, g.ID)
		_ = s.DeleteMembersByGroup(ctx, g.ID)
		_ = s.DeleteGroup(ctx, g.ID)
	}()

	require.NoError(t, s.CreateMember(ctx, &models.Member{StudyGroupID: g.ID, UserID: 1, IsLeader: true}))
	err := s.CreateMember(ctx, &models.Member{StudyGroupID: g.ID, UserID: 1})
	assert.ErrorIs(t, err, ErrDuplicate)

	base := int64(g.ID) * 1000
	require.NoError(t, s.CreateRequest(ctx, &models.MembershipRequest{ID: base + 1, StudyGroupID: g.ID, UserID: 2, RequestMessage: "hi"}))
	err = s.CreateRequest(ctx, &models.MembershipRequest{ID: base + 2, StudyGroupID: g.ID, UserID: 2, RequestMessage: "again"})
	assert.ErrorIs(t, err, ErrDuplicate)

	bad := &models.MembershipRequest{ID: base + 3, StudyGroupID: g.ID, UserID: 3, RequestMessage: "x", IsApproved: true}
	assert.ErrorIs(t, s.CreateRequest(ctx, bad), models.ErrApprovedUnprocessed)
}

func TestGormStore_LockSerializesCapacityCheck(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	g := seedGroup(t, s, uuid.NewString())
	defer func() {
		_ = s.DeleteMembersByGroup(ctx, g.ID)
		_ = s.DeleteGroup(ctx, g.ID)
	}()

	errFull := errors.New("full")
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			_ = s.Transaction(ctx, func(tx Store) error {
				if _, err := tx.LockGroup(ctx, g.ID); err != nil {
					return err
				}
				n, err := tx.CountMembers(ctx, g.ID)
				if err != nil {
					return err
				}
				if n >= g.MemberLimit {
					return errFull
				}
				return tx.CreateMember(ctx, &models.Member{StudyGroupID: g.ID, UserID: uid})
			})
		}(uint(i))
	}
	wg.Wait()

	n, err := s.CountMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.MemberLimit, n)
}
