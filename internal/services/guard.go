package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gopher0727/StudyGroup/internal/repositories"
)

// AuthorizationGuard 组长/成员身份判断的唯一入口
// store 由调用方传入，事务内调用时读到的是事务视图
type AuthorizationGuard interface {
	IsLeader(ctx context.Context, store repositories.Store, userID, groupID uint) (bool, error)
	IsMember(ctx context.Context, store repositories.Store, userID, groupID uint) (bool, error)
}

// MemberGuard 基于成员表的实现
type MemberGuard struct{}

func NewMemberGuard() *MemberGuard {
	return &MemberGuard{}
}

func (MemberGuard) IsLeader(ctx context.Context, store repositories.Store, userID, groupID uint) (bool, error) {
	m, err := store.FindMember(ctx, groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check leader: %w", err)
	}
	return m.IsLeader, nil
}

func (MemberGuard) IsMember(ctx context.Context, store repositories.Store, userID, groupID uint) (bool, error) {
	_, err := store.FindMember(ctx, groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return true, nil
}
