package request

// AddCommentRequest 添加行级评论请求
// 使用位置:
//   - internal/handler/session_handler.go: AddCommentHandler
//   - internal/service/gateway/gateway.go: AppendComment
type AddCommentRequest struct {
	Content    string `json:"content" binding:"required"`
	LineNumber int    `json:"lineNumber" binding:"required,min=1"`
	AuthorId   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Color      string `json:"color"`
}
