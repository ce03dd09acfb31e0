package request

// RunCodeRequest 沙箱执行代码请求
// 使用位置:
//   - internal/handler/session_handler.go: RunCodeHandler
type RunCodeRequest struct {
	Code string `json:"code" binding:"required"`
}
