package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/service"
)

// ListTopics 获取主题列表
func (a *API) ListTopics(c *gin.Context) {
	includeDeleted := c.Query("includeDeleted") == "true"
	topics, err := a.topics.List(includeDeleted)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

// GetTopic 获取单个主题
func (a *API) GetTopic(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的主题ID")
		return
	}

	topic, err := a.topics.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": topic})
}

// CreateTopic 创建主题，可挂在已有主题之下。
func (a *API) CreateTopic(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ParentID    *uint  `json:"parentId"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}

	topic, err := a.topics.Create(caller, service.TopicInput{
		Name:        payload.Name,
		Description: payload.Description,
		ParentID:    payload.ParentID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"topic": topic})
}

// UpdateTopic 修改主题名称、描述或移动主题。
func (a *API) UpdateTopic(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的主题ID")
		return
	}

	var payload struct {
		Name        *string         `json:"name"`
		Description *string         `json:"description"`
		ParentID    json.RawMessage `json:"parentId"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}

	input := service.TopicUpdateInput{
		Name:        payload.Name,
		Description: payload.Description,
	}
	if input.ParentID, input.ParentSet, err = parseOptionalID(payload.ParentID); err != nil {
		respondError(c, http.StatusBadRequest, "无效的父主题ID")
		return
	}

	topic, err := a.topics.Update(caller, id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": topic})
}

// DeleteTopic 软删除主题；仍有已发布文章或存活子主题时拒绝。
func (a *API) DeleteTopic(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的主题ID")
		return
	}

	if err := a.topics.Delete(caller, id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "主题已删除"})
}

// UndeleteTopic 恢复被软删除的主题及其祖先链。
func (a *API) UndeleteTopic(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的主题ID")
		return
	}
	restoreChildren := c.Query("restoreChildren") == "true"

	topic, err := a.topics.Restore(caller, id, restoreChildren)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": topic})
}

// MergeTopics 把源主题的文章与子树并入目标主题。
func (a *API) MergeTopics(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var payload struct {
		SourceID     *uint `json:"sourceId"`
		TargetID     *uint `json:"targetId"`
		DryRun       bool  `json:"dryRun"`
		DeleteSource bool  `json:"deleteSource"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}
	if payload.SourceID == nil || payload.TargetID == nil {
		respondError(c, http.StatusBadRequest, "缺少 sourceId 或 targetId")
		return
	}

	stats, err := a.topics.Merge(caller, *payload.SourceID, *payload.TargetID,
		payload.DryRun, payload.DeleteSource)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "dryRun": payload.DryRun})
}
