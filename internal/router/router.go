package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话与请求标识中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("threadlog_session", store))
	r.Use(requestID())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := handler.NewAPI(db.DB)

	// 访客可读入口，受 guest_read_access 设置控制
	public := r.Group("/api/public")
	public.Use(api.GuestAccess())
	{
		public.GET("/articles", api.ListPublishedArticles)
		public.GET("/articles/:id", api.GetPublishedArticle)
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/login", api.Login)
		apiGroup.POST("/logout", api.Logout)

		// 需要认证的路由
		auth := apiGroup.Group("")
		auth.Use(api.AuthRequired())
		{
			auth.GET("/articles", api.ListArticles)
			auth.GET("/articles/:id", api.GetArticle)
			auth.POST("/articles", api.CreateArticle)
			auth.PATCH("/articles/:id", api.UpdateArticle)
			auth.GET("/articles/:id/revisions", api.ListArticleRevisions)
			auth.POST("/articles/:id/publish", api.PublishArticle)
			auth.POST("/articles/:id/unpublish", api.UnpublishArticle)
			auth.DELETE("/articles/:id", api.DeleteArticle)
			auth.POST("/articles/:id/undelete", api.UndeleteArticle)
			auth.DELETE("/articles/:id/permanent", api.PermanentDeleteArticle)

			auth.GET("/topics", api.ListTopics)
			auth.GET("/topics/:id", api.GetTopic)
			auth.POST("/topics", api.CreateTopic)
			auth.PATCH("/topics/:id", api.UpdateTopic)
			auth.DELETE("/topics/:id", api.DeleteTopic)
			auth.POST("/topics/:id/undelete", api.UndeleteTopic)
			auth.POST("/topics/merge", api.MergeTopics)

			auth.GET("/settings", api.GetSystemSettings)
			auth.PUT("/settings", api.UpdateSystemSettings)
		}
	}

	return r
}

// requestID 为每个请求补齐 X-Request-ID，便于日志串联。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}
