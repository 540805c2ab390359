package server

import (
	"net/http"

	"github.com/y-cruce/postflow/internal/handler"
	"github.com/y-cruce/postflow/internal/server/middleware"
	"github.com/y-cruce/postflow/internal/server/ws"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由器中间件和路由
func SetupRouter(r *gin.Engine, handlers *handler.Handlers, hub *ws.Hub) *gin.Engine {
	// 应用中间件
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 注册路由
	registerRoutes(r, handlers, hub)

	return r
}

// registerRoutes 注册所有 HTTP 路由
func registerRoutes(r *gin.Engine, h *handler.Handlers, hub *ws.Hub) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// 账号
		accounts := api.Group("/accounts")
		{
			accounts.GET("", h.Account.List)
			accounts.POST("/refresh", h.Account.Refresh)
			accounts.POST("/:id/freeze", h.Account.Freeze)
			accounts.POST("/:id/unfreeze", h.Account.Unfreeze)
			accounts.POST("/:id/clear_old_posts", h.Account.ClearOldPosts)
		}

		// 帖子
		posts := api.Group("/posts")
		{
			posts.GET("/query", h.Post.Query)
			posts.POST("", h.Post.Create)
			posts.PUT("/:id", h.Post.Update)
			posts.PATCH("/:id", h.Post.Update)
			posts.DELETE("/:id", h.Post.Delete)
			posts.POST("/bulk_delete", h.Post.BulkDelete)
			posts.POST("/delete_after", h.Post.DeleteAfter)
			posts.POST("/publish_due", h.Post.PublishDue)

			// 批量排期
			posts.POST("/batch_preflight", h.Batch.Preflight)
			posts.POST("/batch/commit", h.Batch.Commit)
		}

		// 素材
		media := api.Group("/media")
		{
			media.GET("", h.Media.List)
			media.POST("/upload", h.Media.Upload)
			media.DELETE("/:id", h.Media.Delete)
		}

		// 系统信息与状态推送
		api.GET("/system/info", h.System.Info)
		api.GET("/ws", hub.Serve)
	}
}
