// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
// 遵循依赖倒置原则，通过构造函数注入依赖
package handler

import (
	"collab_review_server/internal/service/gateway"
	"collab_review_server/internal/service/presence"
	"collab_review_server/internal/service/sandbox"
)

// Handlers 聚合所有 Handler 实例
// 作为依赖注入的入口，Router 层通过此结构访问各个 Handler
type Handlers struct {
	Session *SessionHandler
	Ws      *WsHandler
}

// NewHandlers 创建并注入所有 Handler 实例
func NewHandlers(gw gateway.SessionGateway, engine *presence.Engine, executor *sandbox.Executor) *Handlers {
	return &Handlers{
		Session: NewSessionHandler(gw, engine, executor),
		Ws:      NewWsHandler(engine),
	}
}
