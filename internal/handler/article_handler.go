package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/service"
)

// articleResponse 组装文章响应，回复额外解析其实际归属的主题。
func (a *API) articleResponse(c *gin.Context, id uint) (gin.H, bool) {
	article, err := a.articles.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	effectiveTopicID, err := a.articles.EffectiveTopicID(article)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return gin.H{"article": article, "effectiveTopicId": effectiveTopicID}, true
}

// ListArticles 获取文章列表，支持状态、主题、父节点过滤与分页。
func (a *API) ListArticles(c *gin.Context) {
	filter := service.ArticleFilter{Status: c.Query("status")}
	if raw := c.Query("topicId"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的主题ID")
			return
		}
		topicID := uint(parsed)
		filter.TopicID = &topicID
	}
	if raw := c.Query("parentId"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的父节点ID")
			return
		}
		parentID := uint(parsed)
		filter.ParentID = &parentID
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PerPage, _ = strconv.Atoi(c.DefaultQuery("perPage", "10"))

	result, err := a.articles.List(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"articles":       result.Articles,
		"total":          result.Total,
		"publishedCount": result.PublishedCount,
		"draftCount":     result.DraftCount,
		"totalPages":     result.TotalPages,
		"page":           result.Page,
		"perPage":        result.PerPage,
	})
}

// GetArticle 获取单篇文章
func (a *API) GetArticle(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	body, ok := a.articleResponse(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, body)
}

// CreateArticle 创建根文章或回复。
func (a *API) CreateArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var payload struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		ParentID *uint  `json:"parentId"`
		TopicID  *uint  `json:"topicId"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}

	article, err := a.articles.Create(caller, service.ArticleInput{
		Title:    payload.Title,
		Content:  payload.Content,
		ParentID: payload.ParentID,
		TopicID:  payload.TopicID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	body, ok := a.articleResponse(c, article.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, body)
}

// UpdateArticle 带版本守卫的编辑；parentId/topicId 支持显式置空。
func (a *API) UpdateArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var payload struct {
		Title    *string         `json:"title"`
		Content  *string         `json:"content"`
		ParentID json.RawMessage `json:"parentId"`
		TopicID  json.RawMessage `json:"topicId"`
		Version  *int            `json:"version"`
	}
	if !bindJSON(c, &payload, "请求格式错误") {
		return
	}
	if payload.Version == nil {
		respondError(c, http.StatusBadRequest, "缺少 version 字段")
		return
	}

	input := service.ArticleUpdateInput{
		Title:   payload.Title,
		Content: payload.Content,
		Version: *payload.Version,
	}
	if input.ParentID, input.ParentSet, err = parseOptionalID(payload.ParentID); err != nil {
		respondError(c, http.StatusBadRequest, "无效的父节点ID")
		return
	}
	if input.TopicID, input.TopicSet, err = parseOptionalID(payload.TopicID); err != nil {
		respondError(c, http.StatusBadRequest, "无效的主题ID")
		return
	}

	article, err := a.articles.Update(caller, id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	body, ok := a.articleResponse(c, article.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, body)
}

// ListArticleRevisions 返回文章的修订历史。
func (a *API) ListArticleRevisions(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	revisions, err := a.articles.ListRevisions(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	views := make([]gin.H, 0, len(revisions))
	for _, revision := range revisions {
		updatedBy := revision.User.DisplayName
		if updatedBy == "" {
			updatedBy = revision.User.Username
		}
		views = append(views, gin.H{
			"version":     revision.Version,
			"title":       revision.Title,
			"content":     revision.Content,
			"contentHash": revision.ContentHash,
			"updatedAt":   revision.CreatedAt,
			"updatedBy":   updatedBy,
		})
	}
	c.JSON(http.StatusOK, gin.H{"revisions": views})
}

// PublishArticle 发布草稿。
func (a *API) PublishArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	article, err := a.articles.Publish(caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": article})
}

// UnpublishArticle 在时间窗口内撤回发布。
func (a *API) UnpublishArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	article, err := a.articles.Unpublish(caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": article})
}

// DeleteArticle 删除文章：作者收回草稿或管理员级联软删除。
func (a *API) DeleteArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	deletedCount, err := a.articles.Delete(caller, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": deletedCount})
}

// UndeleteArticle 恢复被软删除的文章及其祖先链。
func (a *API) UndeleteArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}
	restoreChildren := c.Query("restoreChildren") == "true"

	article, err := a.articles.Restore(caller, id, restoreChildren)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": article})
}

// PermanentDeleteArticle 物理删除一篇已软删除的文章。
func (a *API) PermanentDeleteArticle(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	if err := a.articles.PermanentDelete(caller, id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文章已永久删除"})
}
