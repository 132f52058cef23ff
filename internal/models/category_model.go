package models

// Category 分类，启动时按配置初始化，创建小组时只能引用已存在的分类
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"-"`
	Name string `gorm:"size:20;uniqueIndex;not null" json:"name"`
}

func (Category) TableName() string {
	return "categories"
}

// Tag 标签，按需创建
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"-"`
	Name string `gorm:"size:20;uniqueIndex;not null" json:"name"`
}

func (Tag) TableName() string {
	return "tags"
}
