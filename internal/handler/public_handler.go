package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/service"
	"github.com/yuin/goldmark"
)

// GuestAccess 是公开读取入口的门卫：已登录用户直接放行，
// 访客取决于 guest_read_access 设置。核心服务本身不感知该开关。
func (a *API) GuestAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if _, ok := session.Get("user_id").(uint); ok {
			c.Next()
			return
		}

		settings, err := a.system.GetSettings()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "读取系统设置失败")
			c.Abort()
			return
		}
		if !settings.GuestReadAccess {
			respondError(c, http.StatusForbidden, "站点未开放访客浏览")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ListPublishedArticles 面向访客的已发布文章列表。
func (a *API) ListPublishedArticles(c *gin.Context) {
	filter := service.ArticleFilter{Status: "published"}
	if raw := c.Query("topicId"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的主题ID")
			return
		}
		topicID := uint(parsed)
		filter.TopicID = &topicID
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PerPage, _ = strconv.Atoi(c.DefaultQuery("perPage", "10"))

	result, err := a.articles.List(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"articles":   result.Articles,
		"total":      result.Total,
		"totalPages": result.TotalPages,
		"page":       result.Page,
		"perPage":    result.PerPage,
	})
}

// GetPublishedArticle 面向访客的单篇阅读，正文渲染为 HTML。
func (a *API) GetPublishedArticle(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	article, err := a.articles.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if article.Deleted || !article.Published {
		respondError(c, http.StatusNotFound, "文章不存在")
		return
	}

	effectiveTopicID, err := a.articles.EffectiveTopicID(article)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article":          article,
		"effectiveTopicId": effectiveTopicID,
		"html":             renderMarkdown(article.Content),
	})
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return ""
	}
	return buf.String()
}
