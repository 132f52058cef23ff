package services

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/StudyGroup/internal/policy"
)

var (
	ErrValidation       = errors.New("参数校验失败")
	ErrForbidden        = errors.New("没有权限执行该操作")
	ErrGroupNotFound    = errors.New("小组不存在")
	ErrRequestNotFound  = errors.New("入组申请不存在")
	ErrMemberNotFound   = errors.New("成员不存在")
	ErrGroupClosed      = errors.New("小组已停止招募")
	ErrAlreadyMember    = errors.New("用户已经是该小组成员")
	ErrDuplicatePending = errors.New("已有待处理的入组申请")
	ErrAlreadyProcessed = errors.New("该申请已处理")
	ErrLastLeader       = errors.New("小组至少需要保留一名组长")
)

// FieldError 指明具体出错的字段，errors.Is(err, ErrValidation) 成立
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}

func fieldError(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// domainErrors 业务拒绝，不属于系统故障
var domainErrors = []struct {
	err     error
	outcome string
}{
	{ErrValidation, "validation"},
	{policy.ErrDateOrder, "validation"},
	{policy.ErrCapacity, "validation"},
	{ErrForbidden, "forbidden"},
	{ErrGroupNotFound, "not_found"},
	{ErrRequestNotFound, "not_found"},
	{ErrMemberNotFound, "not_found"},
	{ErrGroupClosed, "group_closed"},
	{ErrAlreadyMember, "already_member"},
	{ErrDuplicatePending, "duplicate_pending"},
	{ErrAlreadyProcessed, "already_processed"},
	{ErrLastLeader, "last_leader"},
}

// Outcome 将错误归类为指标标签
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.outcome
		}
	}
	return "error"
}

// IsDomainError 报告 err 是否为业务规则拒绝
func IsDomainError(err error) bool {
	o := Outcome(err)
	return o != "ok" && o != "error"
}
