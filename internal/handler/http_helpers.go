package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// parseOptionalID 解析 PATCH 请求中可空的引用字段：
// 字段缺席返回 set=false；显式 null 返回 set=true 且 id 为空。
func parseOptionalID(raw json.RawMessage) (id *uint, set bool, err error) {
	if raw == nil {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var value uint
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, true, err
	}
	return &value, true, nil
}

// respondServiceError 将服务层错误映射为稳定的状态码与提示信息。
func respondServiceError(c *gin.Context, err error) {
	var notEmpty *service.TopicNotEmptyError

	switch {
	case errors.Is(err, service.ErrArticleNotFound):
		respondError(c, http.StatusNotFound, "文章不存在")
	case errors.Is(err, service.ErrTopicNotFound):
		respondError(c, http.StatusNotFound, "主题不存在")
	case errors.Is(err, service.ErrParentNotFound):
		respondError(c, http.StatusNotFound, "父节点不存在")
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "没有权限执行该操作")
	case errors.Is(err, service.ErrVersionConflict):
		respondError(c, http.StatusConflict, "内容已被他人修改，请刷新后重试")
	case errors.Is(err, service.ErrCycleDetected):
		respondError(c, http.StatusBadRequest, "不能把节点挂到它自己的后代下面")
	case errors.Is(err, service.ErrParentDeleted):
		respondError(c, http.StatusBadRequest, "父节点已被删除")
	case errors.As(err, &notEmpty):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "主题下仍有内容，无法删除",
			"publishedArticles": notEmpty.PublishedArticles,
			"childTopics":       notEmpty.ChildTopics,
		})
	case errors.Is(err, service.ErrTitleRequired):
		respondError(c, http.StatusBadRequest, "标题不能为空")
	case errors.Is(err, service.ErrContentRequired):
		respondError(c, http.StatusBadRequest, "内容不能为空")
	case errors.Is(err, service.ErrTopicRequired):
		respondError(c, http.StatusBadRequest, "根文章必须选择主题")
	case errors.Is(err, service.ErrTopicOnReply):
		respondError(c, http.StatusBadRequest, "回复不能单独指定主题")
	case errors.Is(err, service.ErrTopicNameRequired):
		respondError(c, http.StatusBadRequest, "主题名称不能为空")
	case errors.Is(err, service.ErrSameTopic):
		respondError(c, http.StatusBadRequest, "源主题与目标主题不能相同")
	case errors.Is(err, service.ErrArticleNotDeleted),
		errors.Is(err, service.ErrTopicNotDeleted):
		respondError(c, http.StatusBadRequest, "目标未处于已删除状态")
	case errors.Is(err, service.ErrNotPublished):
		respondError(c, http.StatusBadRequest, "文章尚未发布")
	case errors.Is(err, service.ErrUnpublishWindow):
		respondError(c, http.StatusBadRequest, "已超过允许撤回发布的时间窗口")
	case errors.Is(err, service.ErrHasReplies):
		respondError(c, http.StatusBadRequest, "文章已有回复，无法撤回发布")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败，请稍后重试")
	}
}
