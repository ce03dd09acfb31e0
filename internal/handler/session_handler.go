// Package handler 提供 HTTP 请求处理器
// 本文件处理评审会话相关的 API 请求
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab_review_server/internal/dto/request"
	"collab_review_server/internal/dto/respond"
	"collab_review_server/internal/model"
	"collab_review_server/internal/service/gateway"
	"collab_review_server/internal/service/presence"
	"collab_review_server/internal/service/sandbox"
)

// SessionHandler 评审会话请求处理器
// 通过构造函数注入网关、引擎和沙箱依赖
type SessionHandler struct {
	gateway  gateway.SessionGateway
	engine   *presence.Engine
	executor *sandbox.Executor
}

// NewSessionHandler 创建会话处理器实例
func NewSessionHandler(gw gateway.SessionGateway, engine *presence.Engine, executor *sandbox.Executor) *SessionHandler {
	return &SessionHandler{
		gateway:  gw,
		engine:   engine,
		executor: executor,
	}
}

// CreateSessionHandler 创建评审会话
// POST /api/session
// 请求体: request.CreateSessionRequest
// 响应: respond.SessionSummaryRespond
func (h *SessionHandler) CreateSessionHandler(c *gin.Context) {
	var req request.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	record, err := h.gateway.Create(req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, h.summaryOf(record, 0))
}

// GetSessionHandler 获取会话详情（含在线名册）
// GET /api/session/:id
// 响应: respond.SessionDetailRespond
func (h *SessionHandler) GetSessionHandler(c *gin.Context) {
	sessionId := c.Param("id")
	record, err := h.gateway.Load(sessionId)
	if err != nil {
		HandleError(c, err)
		return
	}

	commentCount, err := h.gateway.CountComments(sessionId)
	if err != nil {
		// 计数失败降级为 0，详情查询仍然成功
		zap.L().Warn("统计评论数失败", zap.String("session_id", sessionId), zap.Error(err))
		commentCount = 0
	}

	snapshot := h.engine.Presence(sessionId)
	users := make([]respond.SessionUserRespond, 0, len(snapshot.Users))
	for _, u := range snapshot.Users {
		users = append(users, respond.SessionUserRespond{
			Id:       u.Id,
			Name:     u.Name,
			Color:    u.Color,
			IsTyping: u.IsTyping,
		})
	}

	summary := h.summaryOf(record, commentCount)
	summary.IsActive = snapshot.Live
	summary.UserCount = len(users)
	HandleSuccess(c, respond.SessionDetailRespond{
		SessionSummaryRespond: summary,
		Code:                  record.Code,
		Users:                 users,
	})
}

// GetSessionListHandler 按创建者查询会话列表
// GET /api/session/list?ownerId=xxx
// 响应: respond.SessionListWrapper
func (h *SessionHandler) GetSessionListHandler(c *gin.Context) {
	var req request.OwnerSessionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	records, err := h.gateway.ListByOwner(req.OwnerId)
	if err != nil {
		HandleError(c, err)
		return
	}

	list := make([]respond.SessionSummaryRespond, 0, len(records))
	for i := range records {
		count, err := h.gateway.CountComments(records[i].Uuid)
		if err != nil {
			count = 0
		}
		summary := h.summaryOf(&records[i], count)
		snapshot := h.engine.Presence(records[i].Uuid)
		summary.IsActive = snapshot.Live
		summary.UserCount = len(snapshot.Users)
		list = append(list, summary)
	}
	HandleSuccess(c, respond.SessionListWrapper{List: list, Total: int64(len(list))})
}

// GetCommentsHandler 获取会话的全部评论
// GET /api/session/:id/comments
// 响应: []respond.CommentRespond
func (h *SessionHandler) GetCommentsHandler(c *gin.Context) {
	sessionId := c.Param("id")
	if _, err := h.gateway.Load(sessionId); err != nil {
		HandleError(c, err)
		return
	}
	comments, err := h.gateway.Comments(sessionId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, comments)
}

// AddCommentHandler 追加行级评论并广播给会话成员
// POST /api/session/:id/comments
// 请求体: request.AddCommentRequest
// 响应: respond.CommentRespond
func (h *SessionHandler) AddCommentHandler(c *gin.Context) {
	sessionId := c.Param("id")
	var req request.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	comment, err := h.gateway.AppendComment(sessionId, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	// 在线成员实时收到新评论，在线评论日志同步并入，后加入者可见
	h.engine.AppendLiveComment(sessionId, *comment)
	HandleSuccess(c, comment)
}

// SaveCodeHandler 持久化代码快照
// POST /api/session/:id/save
// 请求体: request.SaveCodeRequest
func (h *SessionHandler) SaveCodeHandler(c *gin.Context) {
	sessionId := c.Param("id")
	var req request.SaveCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.gateway.SaveCode(sessionId, req.Code); err != nil {
		HandleError(c, err)
		return
	}
	// 会话在线时同步更新实时缓冲区
	h.engine.SyncLiveCode(sessionId, req.Code)
	HandleSuccess(c, nil)
}

// RunCodeHandler 在沙箱中执行代码并广播执行结果
// POST /api/session/:id/run
// 请求体: request.RunCodeRequest
// 响应: respond.RunResultRespond
func (h *SessionHandler) RunCodeHandler(c *gin.Context) {
	sessionId := c.Param("id")
	var req request.RunCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	result := h.executor.Execute(c.Request.Context(), req.Code, 0)
	rsp := presence.RunResultToRespond(result)
	// 执行结果广播给全会话，包括通过 HTTP 发起执行的成员
	h.engine.BroadcastEvent(sessionId, presence.EventRunOutput, rsp)
	HandleSuccess(c, rsp)
}

// summaryOf 会话记录转概要响应，在线状态由调用方按需填充
func (h *SessionHandler) summaryOf(record *model.SessionRecord, commentCount int64) respond.SessionSummaryRespond {
	return respond.SessionSummaryRespond{
		Id:           record.Uuid,
		Title:        record.Title,
		Language:     record.Language,
		OwnerId:      record.OwnerId,
		OwnerName:    record.OwnerName,
		CreatedAt:    record.CreatedAt.Format(time.RFC3339),
		CommentCount: commentCount,
		CodeLength:   len(record.Code),
	}
}
