// Package policy 招募规则，全部是纯函数
// 不访问存储，调用方传入在事务内读取的快照
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/Gopher0727/StudyGroup/internal/clock"
)

const (
	MinCapacity = 2
	MaxCapacity = 10
)

var (
	ErrDateOrder = errors.New("dates out of order")
	ErrCapacity  = errors.New("capacity out of range")
)

// Snapshot 事务内某一时刻观察到的小组状态
type Snapshot struct {
	Deadline    time.Time
	Capacity    int
	MemberCount int
	// Filled 曾经满员，之后即使移除成员也保持关闭
	Filled bool
}

// DateOrderError 指出不满足严格递增的一对日期
// Field 取较晚的那个字段，返回给客户端
type DateOrderError struct {
	Earlier string
	Later   string
	Field   string
}

func (e *DateOrderError) Error() string {
	return fmt.Sprintf("%s must be after %s", e.Later, e.Earlier)
}

func (e *DateOrderError) Is(target error) bool {
	return target == ErrDateOrder
}

type CapacityError struct {
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("member limit must be between %d and %d, got %d", MinCapacity, MaxCapacity, e.Capacity)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// IsOpen 小组今天是否仍接受申请和批准，截止日当天仍然开放
func IsOpen(s Snapshot, today time.Time) bool {
	if s.Filled {
		return false
	}
	if clock.DateOf(today).After(clock.DateOf(s.Deadline)) {
		return false
	}
	return s.MemberCount < s.Capacity
}

// ValidateDates 校验 today < deadline < start < end
func ValidateDates(deadline, start, end, today time.Time) error {
	pairs := []struct {
		earlierName, laterName string
		earlier, later         time.Time
	}{
		{"today", "deadline", today, deadline},
		{"deadline", "start_date", deadline, start},
		{"start_date", "end_date", start, end},
	}
	for _, p := range pairs {
		if !clock.DateOf(p.earlier).Before(clock.DateOf(p.later)) {
			return &DateOrderError{Earlier: p.earlierName, Later: p.laterName, Field: p.laterName}
		}
	}
	return nil
}

func ValidateCapacity(n int) error {
	if n < MinCapacity || n > MaxCapacity {
		return &CapacityError{Capacity: n}
	}
	return nil
}

// UntilDeadline 距截止日的天数，过期后为负数
func UntilDeadline(deadline, today time.Time) int {
	d := clock.DateOf(deadline).Sub(clock.DateOf(today))
	return int(d.Hours() / 24)
}
