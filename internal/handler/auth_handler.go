package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/service"
	"golang.org/x/crypto/bcrypt"
)

const callerContextKey = "__caller"

// Login 处理用户登录请求，成功后写入会话。
func (a *API) Login(c *gin.Context) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}

	var user db.User
	if err := a.db.Where("username = ?", payload.Username).First(&user).Error; err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}
	if user.Status != db.StatusActive {
		respondError(c, http.StatusForbidden, "账号已被停用")
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":          user.ID,
			"username":    user.Username,
			"displayName": user.DisplayName,
			"role":        user.Role,
		},
	})
}

// Logout 处理用户登出。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// AuthRequired 校验会话并把调用者身份挂到请求上下文。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		rawID := session.Get("user_id")
		userID, ok := rawID.(uint)
		if !ok {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}

		var user db.User
		if err := a.db.First(&user, userID).Error; err != nil {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		if user.Status != db.StatusActive {
			respondError(c, http.StatusForbidden, "账号已被停用")
			c.Abort()
			return
		}

		c.Set(callerContextKey, service.CallerFromUser(&user))
		c.Next()
	}
}

// currentCaller 取出 AuthRequired 放入上下文的调用者身份。
func currentCaller(c *gin.Context) (service.Caller, bool) {
	raw, exists := c.Get(callerContextKey)
	if !exists {
		return service.Caller{}, false
	}
	caller, ok := raw.(service.Caller)
	return caller, ok
}

func requireCaller(c *gin.Context) (service.Caller, bool) {
	caller, ok := currentCaller(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return service.Caller{}, false
	}
	return caller, true
}
