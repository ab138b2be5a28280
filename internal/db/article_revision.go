package db

import "time"

// ArticleRevision 记录文章每次被接受编辑前的内容快照，只追加、从不删除。
type ArticleRevision struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	ArticleID uint `gorm:"index"`
	Version   int
	Title     string
	Content   string `gorm:"type:text"`

	ContentHash string
	UserID      uint
	User        User
}

// TableName 指定自定义表名。
func (ArticleRevision) TableName() string {
	return "article_revisions"
}
