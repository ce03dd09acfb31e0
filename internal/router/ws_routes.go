// Package router 提供 HTTP 路由注册
// 本文件定义 WebSocket 相关的路由
package router

import (
	"github.com/gin-gonic/gin"

	"collab_review_server/internal/handler"
)

// RegisterWebSocketRoutes 注册 WebSocket 相关路由
func RegisterWebSocketRoutes(r *gin.Engine, handlers *handler.Handlers) {
	// WebSocket 连接入口
	// 请求示例: ws://host:port/wss?client_id=conn_123
	r.GET("/wss", handlers.Ws.WsConnectHandler)
}
