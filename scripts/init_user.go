package main

import (
	"fmt"
	"log"

	"github.com/threadlog/internal/config"
	"github.com/threadlog/internal/db"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	// 检查是否已存在用户
	var count int64
	db.DB.Model(&db.User{}).Count(&count)
	if count > 0 {
		fmt.Println("用户已存在，无需初始化")
		return
	}

	// 创建默认管理员用户
	password := "admin123" // 默认密码
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("密码加密失败:", err)
	}

	admin := db.User{
		Username:    "admin",
		Password:    string(hashedPassword),
		DisplayName: "管理员",
		Role:        db.RoleAdmin,
		Status:      db.StatusActive,
	}
	if err := db.DB.Create(&admin).Error; err != nil {
		log.Fatal("创建管理员失败:", err)
	}

	fmt.Printf("管理员账号已创建: admin / %s (请尽快修改密码)\n", password)
}
