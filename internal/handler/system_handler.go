package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/service"
)

// GetSystemSettings 返回站点设置。
func (a *API) GetSystemSettings(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if !caller.IsAdmin() {
		respondError(c, http.StatusForbidden, "没有权限查看系统设置")
		return
	}

	settings, err := a.system.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取系统设置失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"siteName":        settings.SiteName,
		"guestReadAccess": settings.GuestReadAccess,
	})
}

// UpdateSystemSettings 保存站点设置。
func (a *API) UpdateSystemSettings(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if !caller.IsAdmin() {
		respondError(c, http.StatusForbidden, "没有权限修改系统设置")
		return
	}

	var payload struct {
		SiteName        string `json:"siteName"`
		GuestReadAccess bool   `json:"guestReadAccess"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}

	settings, err := a.system.UpdateSettings(service.SystemSettingsInput{
		SiteName:        payload.SiteName,
		GuestReadAccess: payload.GuestReadAccess,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存系统设置失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"siteName":        settings.SiteName,
		"guestReadAccess": settings.GuestReadAccess,
	})
}
