package request

// CreateSessionRequest 创建评审会话请求
// 使用位置:
//   - internal/handler/session_handler.go: CreateSessionHandler
//   - internal/service/gateway/gateway.go: CreateSession
type CreateSessionRequest struct {
	OwnerId   string `json:"ownerId" binding:"required"`
	OwnerName string `json:"ownerName"`
	Title     string `json:"title"`
	Language  string `json:"language"`
}
