package models

import (
	"time"
)

// StudyGroup 学习小组
// 对外只暴露 UUID，ID 仅作内部主键
type StudyGroup struct {
	ID   uint   `gorm:"primaryKey" json:"-"`
	UUID string `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`

	Name        string    `gorm:"size:80;not null" json:"name"`
	MemberLimit int       `gorm:"not null" json:"member_limit"`
	Deadline    time.Time `gorm:"type:date;not null" json:"deadline"`
	StartDate   time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate     time.Time `gorm:"type:date;not null" json:"end_date"`
	Title       string    `gorm:"size:64;not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	HeadImage   string    `gorm:"size:512" json:"head_image"`

	// FilledAt 在名额首次满员时写入，此后即使有成员被移除也保持关闭
	FilledAt *time.Time `json:"filled_at,omitempty"`

	Categories []Category `gorm:"many2many:study_group_categories" json:"categories"`
	Tags       []Tag      `gorm:"many2many:study_group_tags" json:"tags"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StudyGroup) TableName() string {
	return "study_groups"
}

// CategoryNames 返回分类名称列表
func (g *StudyGroup) CategoryNames() []string {
	names := make([]string, 0, len(g.Categories))
	for _, c := range g.Categories {
		names = append(names, c.Name)
	}
	return names
}

func (g *StudyGroup) TagNames() []string {
	names := make([]string, 0, len(g.Tags))
	for _, t := range g.Tags {
		names = append(names, t.Name)
	}
	return names
}
