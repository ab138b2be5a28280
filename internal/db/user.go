package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// RoleAdmin 表示管理员角色。
	RoleAdmin = "admin"
	// RoleUser 表示普通用户角色。
	RoleUser = "user"

	// StatusActive 表示账号可正常使用。
	StatusActive = "active"
	// StatusDisabled 表示账号已被停用。
	StatusDisabled = "disabled"
)

// User 定义了用户模型
type User struct {
	gorm.Model
	Username    string `gorm:"unique;not null"`
	Password    string `gorm:"not null"`
	DisplayName string
	Role        string `gorm:"size:20;not null;default:user"`
	Status      string `gorm:"size:20;not null;default:active"`
}

// EnsureAdmin 存在性检查：若提供的用户名与密码均非空且不存在对应账号，
// 则创建一个 bcrypt 哈希的管理员用户。
func EnsureAdmin(username, password string) error {
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedUser == "" || trimmedPassword == "" {
		return nil
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("username = ?", trimmedUser).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&User{
			Username:    trimmedUser,
			Password:    string(hashed),
			DisplayName: trimmedUser,
			Role:        RoleAdmin,
			Status:      StatusActive,
		}).Error
	}

	return nil
}
