// Package presence 实现了协作评审的核心协议层
// events.go
// 核心职责：WebSocket 线上协议定义
// 统一信封为 {event, data}，data 的具体结构随事件类型变化
package presence

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 客户端上行事件
const (
	EventJoinSession  = "join-session"
	EventCodeChange   = "code-change"
	EventCursorUpdate = "cursor-update"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
	EventLeaveSession = "leave-session"
	EventSaveCode     = "save-code"
	EventRunRequest   = "run-request"
)

// 服务端下行事件
const (
	EventCodeUpdate   = "code-update"
	EventCommentsInit = "comments-init"
	EventCommentAdded = "comment-added"
	EventUsersUpdate  = "users-update"
	EventUserTyping   = "user-typing"
	EventRunOutput    = "run-output"
	EventError        = "error"
	EventSaveSuccess  = "save-success"
	EventSaveError    = "save-error"
)

// Event 线上协议信封
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinSessionData 加入会话载荷
type JoinSessionData struct {
	SessionId string `json:"sessionId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
}

// CodeChangeData 代码变更载荷，整体替换缓冲区
type CodeChangeData struct {
	SessionId string `json:"sessionId"`
	Code      string `json:"code"`
}

// CursorUpdateData 光标上报载荷，Cursor 为 null 表示光标离开
type CursorUpdateData struct {
	SessionId string `json:"sessionId"`
	Cursor    *int   `json:"cursor"`
}

// TypingData 输入状态载荷
type TypingData struct {
	SessionId string `json:"sessionId"`
}

// LeaveSessionData 离开会话载荷
type LeaveSessionData struct {
	SessionId string `json:"sessionId"`
}

// SaveCodeData 通过长连接持久化代码载荷
type SaveCodeData struct {
	SessionId string `json:"sessionId"`
	Code      string `json:"code"`
}

// RunRequestData 沙箱执行请求载荷
type RunRequestData struct {
	SessionId string `json:"sessionId"`
	Code      string `json:"code"`
}

// CursorBroadcastData 光标广播载荷（下行）
type CursorBroadcastData struct {
	UserId     string `json:"userId"`
	UserName   string `json:"userName"`
	UserColor  string `json:"userColor"`
	Cursor     *int   `json:"cursor"`
	LastActive int64  `json:"lastActive"`
}

// UserTypingData 输入状态广播载荷（下行）
type UserTypingData struct {
	UserId    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
	IsTyping  bool   `json:"isTyping"`
}

// ErrorData 错误事件载荷（下行）
type ErrorData struct {
	Message string `json:"message"`
}

// SaveResultData 保存结果载荷（下行）
type SaveResultData struct {
	SessionId string `json:"sessionId"`
	Message   string `json:"message,omitempty"`
}

// encodeEvent 将事件名和载荷编码为信封字节
// 载荷都是本包定义的可序列化结构，编码失败属于编程错误，记日志并返回 nil
func encodeEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("序列化事件载荷失败", zap.String("event", event), zap.Error(err))
		return nil
	}
	envelope, err := json.Marshal(Event{Event: event, Data: raw})
	if err != nil {
		zap.L().Error("序列化事件信封失败", zap.String("event", event), zap.Error(err))
		return nil
	}
	return envelope
}
