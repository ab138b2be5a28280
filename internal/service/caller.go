package service

import (
	"errors"

	"github.com/threadlog/internal/db"
)

// ErrForbidden 表示调用者无权执行该操作。
var ErrForbidden = errors.New("caller is not allowed to perform this action")

// Caller 描述一次请求的调用者身份，由身份中间件在请求入口处构造，
// 并作为显式参数传入各服务方法，而不是挂在全局状态上。
type Caller struct {
	ID     uint
	Roles  []string
	Status string
}

// CallerFromUser 由用户记录构造调用者身份。
func CallerFromUser(user *db.User) Caller {
	return Caller{
		ID:     user.ID,
		Roles:  []string{user.Role},
		Status: user.Status,
	}
}

// IsAdmin 判断调用者是否持有管理员角色。
func (c Caller) IsAdmin() bool {
	for _, role := range c.Roles {
		if role == db.RoleAdmin {
			return true
		}
	}
	return false
}

// IsActive 判断调用者账号是否可用。
func (c Caller) IsActive() bool {
	return c.Status == db.StatusActive
}
