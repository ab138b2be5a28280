package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/config"
	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/logging"
	"github.com/threadlog/internal/router"
)

func main() {
	cfg := config.Load()

	if err := logging.Init(cfg.LogMode); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logging.L().Fatalw("failed to initialize database", "error", err)
	}

	// 按需引导超级管理员账号
	if err := db.EnsureAdmin(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		logging.L().Fatalw("failed to ensure admin user", "error", err)
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg.SessionSecret)
	logging.L().Infow("server starting", "addr", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logging.L().Fatalw("failed to run server", "error", err)
	}
}
