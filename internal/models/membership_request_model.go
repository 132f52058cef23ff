package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrApprovedUnprocessed 已批准的申请必须同时是已处理状态
var ErrApprovedUnprocessed = errors.New("approved request must be processed")

// MembershipRequest 入组申请
// ID 由 snowflake 生成，按时间递增
// 同一 (study_group_id, user_id) 最多只有一条未处理申请，由部分唯一索引保证
type MembershipRequest struct {
	ID             int64      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	StudyGroupID   uint       `gorm:"not null;uniqueIndex:idx_pending_request,where:processed = false;index:idx_request_group_created,priority:1" json:"-"`
	UserID         uint       `gorm:"not null;uniqueIndex:idx_pending_request,where:processed = false" json:"user_id"`
	RequestMessage string     `gorm:"size:200;not null" json:"request_message"`
	Processed      bool       `gorm:"not null;default:false" json:"processed"`
	IsApproved     bool       `gorm:"not null;default:false" json:"is_approved"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	ProcessedBy    *uint      `json:"processed_by,omitempty"`
	CreatedAt      time.Time  `gorm:"index:idx_request_group_created,priority:2" json:"created_at"`
}

func (MembershipRequest) TableName() string {
	return "study_group_member_requests"
}

// CheckState 校验 is_approved ⇒ processed
func (r *MembershipRequest) CheckState() error {
	if r.IsApproved && !r.Processed {
		return ErrApprovedUnprocessed
	}
	return nil
}

// BeforeSave 每次写入前校验状态
func (r *MembershipRequest) BeforeSave(tx *gorm.DB) error {
	return r.CheckState()
}
