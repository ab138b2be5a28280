package handler

import (
	"github.com/threadlog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	articles *service.ArticleService
	topics   *service.TopicService
	system   *service.SystemSettingService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB) *API {
	return &API{
		db:       gdb,
		articles: service.NewArticleService(gdb),
		topics:   service.NewTopicService(gdb),
		system:   service.NewSystemSettingService(gdb),
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}
