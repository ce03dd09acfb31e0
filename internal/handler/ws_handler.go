// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 连接相关的 API 请求
package handler

import (
	"github.com/gin-gonic/gin"

	"collab_review_server/internal/service/presence"
)

// WsHandler WebSocket 连接处理器
type WsHandler struct {
	engine *presence.Engine
}

// NewWsHandler 创建 WebSocket 处理器实例
func NewWsHandler(engine *presence.Engine) *WsHandler {
	return &WsHandler{engine: engine}
}

// WsConnectHandler 建立 WebSocket 连接
// GET /wss?client_id=xxx
// 查询参数: client_id - 连接标识，可选；缺省时由服务端分配 uuid
// 功能:
//   - 将 HTTP 连接升级为 WebSocket 连接
//   - 启动读写协程，后续事件经引擎循环处理
func (h *WsHandler) WsConnectHandler(c *gin.Context) {
	clientId := c.Query("client_id")
	presence.NewConnInit(c, clientId, h.engine)
}
