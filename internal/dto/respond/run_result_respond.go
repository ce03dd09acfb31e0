package respond

// RunResultRespond 沙箱执行结果响应
// Error 为 null 表示执行成功；非空时 Output 仍保留故障前已累计的输出
// 使用位置:
//   - internal/handler/session_handler.go: RunCodeHandler
//   - internal/service/presence/engine.go: run-output 事件载荷
type RunResultRespond struct {
	Output string  `json:"output"`
	Error  *string `json:"error"`
}
