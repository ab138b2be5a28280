package db

import (
	"time"

	"gorm.io/datatypes"
)

// Article 定义了文章模型。回复通过 ParentID 挂在父文章下形成回复树，
// Ancestors 保存从树根到直接父节点的物化路径。
type Article struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Title   string `gorm:"not null"`
	Content string `gorm:"type:text"`

	// ParentID 为空表示根文章；根文章必须归属一个主题
	ParentID  *uint `gorm:"index"`
	Ancestors datatypes.JSONSlice[uint]
	TopicID   *uint `gorm:"index"`

	Version     int  `gorm:"not null;default:1"`
	Published   bool `gorm:"index"`
	PublishedAt *time.Time

	Deleted   bool `gorm:"index"`
	DeletedAt *time.Time
	DeletedBy *uint

	UserID    uint
	User      User
	Revisions []ArticleRevision
}

// IsRoot 判断文章是否为根文章（非回复）。
func (a *Article) IsRoot() bool {
	return a.ParentID == nil
}

// RootID 返回文章所在回复树的根节点 ID。
func (a *Article) RootID() uint {
	if len(a.Ancestors) > 0 {
		return a.Ancestors[0]
	}
	return a.ID
}
