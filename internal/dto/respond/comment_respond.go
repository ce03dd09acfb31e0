package respond

// CommentRespond 行级评论响应
// 使用位置:
//   - internal/handler/session_handler.go: GetCommentsHandler, AddCommentHandler
//   - internal/service/gateway/gateway.go: AppendComment, Comments
type CommentRespond struct {
	Id         string `json:"id"`
	Content    string `json:"content"`
	LineNumber int    `json:"lineNumber"`
	AuthorId   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Color      string `json:"color"`
	CreatedAt  string `json:"createdAt"`
}
