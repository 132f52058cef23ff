package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/policy"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
)

// Decision 组长对申请的处理结果
type Decision int

const (
	Approve Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// IDGenerator 生成入组申请 ID
type IDGenerator interface {
	NextID() (int64, error)
}

// Ledger 入组申请的状态维护：未处理 → 已批准 / 已拒绝
// 只负责申请本身，不创建成员，也不检查名额
type Ledger struct {
	ids   IDGenerator
	clock clock.Clock
}

func NewLedger(ids IDGenerator, clk clock.Clock) *Ledger {
	return &Ledger{ids: ids, clock: clk}
}

// Submit 在 tx 内提交申请，snap 必须是持锁后读取的最新状态
// 检查顺序: 招募已关闭 → 已是成员 → 已有未处理申请
func (l *Ledger) Submit(ctx context.Context, tx repositories.Store, userID, groupID uint, snap policy.Snapshot, message string) (*models.MembershipRequest, error) {
	if !policy.IsOpen(snap, l.clock.Today()) {
		return nil, ErrGroupClosed
	}

	_, err := tx.FindMember(ctx, groupID, userID)
	if err == nil {
		return nil, ErrAlreadyMember
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("find member: %w", err)
	}

	pending, err := tx.HasPendingRequest(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return nil, ErrDuplicatePending
	}

	id, err := l.ids.NextID()
	if err != nil {
		return nil, fmt.Errorf("generate request id: %w", err)
	}
	req := &models.MembershipRequest{
		ID:             id,
		StudyGroupID:   groupID,
		UserID:         userID,
		RequestMessage: message,
		CreatedAt:      time.Now(),
	}
	if err := tx.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrDuplicatePending
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// ListPending 未处理的申请，按提交时间升序
func (l *Ledger) ListPending(ctx context.Context, store repositories.Store, groupID uint) ([]models.MembershipRequest, error) {
	reqs, err := store.ListPendingRequests(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return reqs, nil
}

// Decide 锁定申请行并写入处理结果，已处理的申请不能再次处理
// 调用方须已持有所属小组的行锁
func (l *Ledger) Decide(ctx context.Context, tx repositories.Store, actorID uint, requestID int64, d Decision) (*models.MembershipRequest, error) {
	req, err := tx.LockRequest(ctx, requestID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock request: %w", err)
	}
	if req.Processed {
		return nil, ErrAlreadyProcessed
	}

	now := time.Now()
	req.Processed = true
	req.IsApproved = d == Approve
	req.ProcessedAt = &now
	req.ProcessedBy = &actorID

	if err := tx.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}
	return req, nil
}
