package models

import (
	"time"
)

// Member 小组成员
// (study_group_id, user_id) 唯一，一个用户在同一小组内只有一条成员记录
type Member struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StudyGroupID uint      `gorm:"not null;uniqueIndex:idx_study_group_user" json:"-"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_study_group_user;index" json:"user_id"`
	IsLeader     bool      `gorm:"not null;default:false" json:"is_leader"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Member) TableName() string {
	return "study_group_members"
}
