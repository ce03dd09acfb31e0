package request

// SaveCodeRequest 持久化代码缓冲区请求
// 空字符串是合法的缓冲区内容，因此不加 required 约束
// 使用位置:
//   - internal/handler/session_handler.go: SaveCodeHandler
type SaveCodeRequest struct {
	Code string `json:"code"`
}
