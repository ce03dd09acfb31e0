// Package router 提供 HTTP 路由注册
// 本文件定义评审会话相关的路由
package router

import (
	"github.com/gin-gonic/gin"

	"collab_review_server/internal/handler"
)

// RegisterSessionRoutes 注册会话相关路由
func RegisterSessionRoutes(rg *gin.RouterGroup, handlers *handler.Handlers) {
	sessionGroup := rg.Group("/session")
	{
		sessionGroup.POST("", handlers.Session.CreateSessionHandler)             // 创建会话
		sessionGroup.GET("/list", handlers.Session.GetSessionListHandler)        // 按创建者查询会话列表
		sessionGroup.GET("/:id", handlers.Session.GetSessionHandler)             // 会话详情
		sessionGroup.GET("/:id/comments", handlers.Session.GetCommentsHandler)   // 评论列表
		sessionGroup.POST("/:id/comments", handlers.Session.AddCommentHandler)   // 追加评论
		sessionGroup.POST("/:id/save", handlers.Session.SaveCodeHandler)         // 持久化代码快照
		sessionGroup.POST("/:id/run", handlers.Session.RunCodeHandler)           // 沙箱执行
	}
}
