// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"github.com/gin-gonic/gin"

	"collab_review_server/internal/handler"
)

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func RegisterRoutes(r *gin.Engine, handlers *handler.Handlers) {
	api := r.Group("/api")
	RegisterSessionRoutes(api, handlers) // 评审会话路由
	RegisterWebSocketRoutes(r, handlers) // WebSocket 路由
}
