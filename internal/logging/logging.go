package logging

import (
	"strings"

	"go.uber.org/zap"
)

var log = zap.NewNop().Sugar()

// Init 根据运行模式构建全局日志实例。
func Init(mode string) error {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	log = built.Sugar()
	return nil
}

// L 返回全局日志实例，Init 之前返回空实现。
func L() *zap.SugaredLogger {
	return log
}

// Sync 刷新缓冲的日志。
func Sync() {
	_ = log.Sync()
}
