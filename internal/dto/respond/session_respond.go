package respond

// SessionSummaryRespond 会话概要响应
// IsActive 表示会话当前是否有在线用户（活跃状态来自内存名册，不落库）
// 使用位置:
//   - internal/handler/session_handler.go: GetSessionHandler, CreateSessionHandler, GetSessionListHandler
type SessionSummaryRespond struct {
	Id           string `json:"id"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	OwnerId      string `json:"ownerId"`
	OwnerName    string `json:"ownerName"`
	CreatedAt    string `json:"createdAt"`
	IsActive     bool   `json:"isActive"`
	UserCount    int    `json:"userCount"`
	CommentCount int64  `json:"commentCount"`
	CodeLength   int    `json:"codeLength"`
}

type SessionListWrapper struct {
	List  []SessionSummaryRespond `json:"list"`
	Total int64                   `json:"total"`
}

// SessionUserRespond 会话在线用户
type SessionUserRespond struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	IsTyping bool   `json:"isTyping"`
}

// SessionDetailRespond 会话详情响应，在概要之上附带代码快照和在线名册
type SessionDetailRespond struct {
	SessionSummaryRespond
	Code  string               `json:"code"`
	Users []SessionUserRespond `json:"users"`
}
