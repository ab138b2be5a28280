package db

import (
	"time"

	"gorm.io/datatypes"
)

// Topic 定义了主题模型，主题之间通过 ParentID 构成分类树。
type Topic struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name        string `gorm:"not null"`
	Description string `gorm:"type:text"`

	ParentID  *uint `gorm:"index"`
	Ancestors datatypes.JSONSlice[uint]

	CreatedBy uint

	Deleted   bool `gorm:"index"`
	DeletedAt *time.Time
	DeletedBy *uint
}
