package constants

import "time"

const (
	CHANNEL_SIZE = 100 // 通道大小

	// DEFAULT_CODE 新建会话的初始代码缓冲区内容
	DEFAULT_CODE = "// Start coding..."
	// DEFAULT_LANGUAGE 默认语言标签
	DEFAULT_LANGUAGE = "javascript"

	// DEFAULT_AUTHOR_NAME 评论未提供作者昵称时的兜底值
	DEFAULT_AUTHOR_NAME = "Anonymous"
	// DEFAULT_USER_COLOR 未指定用户颜色时的兜底值
	DEFAULT_USER_COLOR = "#3B82F6"

	// INACTIVE_THRESHOLD 空闲用户清理阈值（配置缺省值）
	INACTIVE_THRESHOLD = 30 * time.Minute
	// SWEEP_INTERVAL 后台清理任务执行间隔（配置缺省值）
	SWEEP_INTERVAL = 5 * time.Minute
	// EXEC_TIMEOUT 沙箱代码执行超时（配置缺省值）
	EXEC_TIMEOUT = 5 * time.Second

	REDIS_TIMEOUT = 1 // redis timeout (分钟)
)
