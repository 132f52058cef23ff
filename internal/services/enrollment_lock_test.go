package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	"github.com/Gopher0727/StudyGroup/utils/snowflake"
)

// vanishingStore 查找能找到小组，加锁时小组已被并发删除
type vanishingStore struct {
	repositories.Store
}

func (s vanishingStore) Transaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repositories.Store) error {
		return fn(vanishingStore{Store: tx})
	})
}

func (vanishingStore) LockGroup(context.Context, uint) (*models.StudyGroup, error) {
	return nil, repositories.ErrNotFound
}

func TestGroupDeletedBeforeLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := f.createGroup(t, userA, 3)
	r := f.join(t, userB, g.UUID)

	ids, err := snowflake.NewGenerator(0, 2)
	require.NoError(t, err)
	svc := NewEnrollmentService(vanishingStore{Store: f.store}, f.clock, NewMemberGuard(), NewLedger(ids, f.clock), f.events, f.metrics, nil)

	_, err = svc.DecideRequest(ctx, userA, g.UUID, r.ID, Approve)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, err = svc.UpdateGroup(ctx, userA, g.UUID, &UpdateGroupRequest{Title: strPtr("新标题")})
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, err = svc.RequestJoin(ctx, userC, g.UUID, "hi")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	assert.ErrorIs(t, svc.RemoveMember(ctx, userA, g.UUID, 1), ErrGroupNotFound)
	assert.ErrorIs(t, svc.DeleteGroup(ctx, userA, g.UUID), ErrGroupNotFound)

	// 申请保持未处理
	pending, err := f.svc.ListPending(ctx, userA, g.UUID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
}
