package request

// OwnerSessionListRequest 按创建者查询会话列表请求
// 使用位置:
//   - internal/handler/session_handler.go: GetSessionListHandler
type OwnerSessionListRequest struct {
	OwnerId string `json:"ownerId" form:"ownerId" binding:"required"`
}
