// Package clock 以日历日提供 "今天"
// 招募规则只比较日期，本包返回的值都是配置时区下当天日期对应的 UTC 零点
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Today() time.Time
}

// DateOf 取 t 在其自身时区的日期，转为 UTC 零点，不同来源的日期可以直接比较
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date 构造一个日历日
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// System 按固定时区读取系统时间
type System struct {
	loc *time.Location
}

func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

// NewSystemFromName 按 IANA 时区名创建，例如 "Asia/Seoul"
func NewSystemFromName(name string) (*System, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return NewSystem(loc), nil
}

func (s *System) Today() time.Time {
	return DateOf(time.Now().In(s.loc))
}

// Fixed 可手动设置的时钟，测试使用
type Fixed struct {
	mu    sync.RWMutex
	today time.Time
}

func NewFixed(today time.Time) *Fixed {
	return &Fixed{today: DateOf(today)}
}

func (f *Fixed) Today() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.today
}

func (f *Fixed) Set(today time.Time) {
	f.mu.Lock()
	f.today = DateOf(today)
	f.mu.Unlock()
}

// Advance 向后推进 days 天
func (f *Fixed) Advance(days int) {
	f.mu.Lock()
	f.today = f.today.AddDate(0, 0, days)
	f.mu.Unlock()
}
