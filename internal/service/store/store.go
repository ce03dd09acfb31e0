// Package store 实现所有在线会话的权威内存状态
// 核心职责：
//  1. 维护在线会话注册表（代码缓冲区、在线用户名册、评论日志）
//  2. 提供同步、非阻塞的变更操作，缺失会话/用户一律返回哨兵值而非错误
//  3. 名册清空时整体淘汰会话，不保留空会话
//
// 并发约定：本包不加锁。所有方法只允许从协同引擎的调度协程进入
// （单写者模型），引擎之外的代码不得直接持有 *Store
package store

import (
	"time"
)

// Comment 行锚定评论
// 创建后不可变，在会话生命周期内只增不删
type Comment struct {
	Id          string    `json:"id"`
	Content     string    `json:"content"`
	LineNumber  int       `json:"lineNumber"`
	AuthorId    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorColor string    `json:"authorColor"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConnectedUser 会话内的在线用户状态
// 以连接 ID 为键，展示属性由客户端提供，不做唯一性校验
type ConnectedUser struct {
	Name       string
	Color      string
	Cursor     *int // 最近一次光标偏移，未上报时为 nil
	IsTyping   bool
	JoinedAt   time.Time
	LastActive time.Time
}

// UserSummary 名册广播用的用户快照
type UserSummary struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Cursor   *int   `json:"cursor,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// Session 在线会话
// users 的插入顺序即加入顺序，由 order 切片单独维护
type Session struct {
	Id       string
	Code     string // 当前缓冲区内容，整体替换（last-writer-wins）
	users    map[string]*ConnectedUser
	order    []string
	comments []Comment
}

// Store 在线会话注册表
type Store struct {
	sessions map[string]*Session
}

// NewStore 创建空的会话注册表
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Get 查找在线会话
func (s *Store) Get(sessionId string) (*Session, bool) {
	sess, ok := s.sessions[sessionId]
	return sess, ok
}

// GetOrCreate 获取在线会话，不存在时以 seed 的返回值作为初始缓冲区创建
// 对已在线的 id 幂等：seed 至多被调用一次
func (s *Store) GetOrCreate(sessionId string, seed func() string) *Session {
	if sess, ok := s.sessions[sessionId]; ok {
		return sess
	}
	sess := &Session{
		Id:    sessionId,
		Code:  seed(),
		users: make(map[string]*ConnectedUser),
	}
	s.sessions[sessionId] = sess
	return sess
}

// AddUser 将连接加入会话名册
// 会话不存在时静默忽略，调用方（协议层）负责保证会话已创建
func (s *Store) AddUser(sessionId, connId, name, color string) {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return
	}
	if _, exists := sess.users[connId]; !exists {
		sess.order = append(sess.order, connId)
	}
	now := time.Now()
	sess.users[connId] = &ConnectedUser{
		Name:       name,
		Color:      color,
		JoinedAt:   now,
		LastActive: now,
	}
}

// RemoveUser 将连接移出会话名册
// 名册因此清空时，会话整体从注册表中淘汰（不保留空会话）
func (s *Store) RemoveUser(sessionId, connId string) bool {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return false
	}
	if _, exists := sess.users[connId]; !exists {
		return false
	}
	delete(sess.users, connId)
	sess.dropFromOrder(connId)
	if len(sess.users) == 0 {
		delete(s.sessions, sessionId)
	}
	return true
}

// UpdateCode 整体替换缓冲区内容，不做合并和差分
// 会话不存在时返回 false
func (s *Store) UpdateCode(sessionId, code string) bool {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return false
	}
	sess.Code = code
	return true
}

// SetCursor 更新用户光标位置并刷新活跃时间
// 返回更新后的用户快照；会话或用户不存在时 ok 为 false
func (s *Store) SetCursor(sessionId, connId string, cursor *int) (ConnectedUser, bool) {
	user, ok := s.lookupUser(sessionId, connId)
	if !ok {
		return ConnectedUser{}, false
	}
	user.Cursor = cursor
	user.LastActive = time.Now()
	return *user, true
}

// SetTyping 更新用户输入状态并刷新活跃时间
func (s *Store) SetTyping(sessionId, connId string, isTyping bool) (ConnectedUser, bool) {
	user, ok := s.lookupUser(sessionId, connId)
	if !ok {
		return ConnectedUser{}, false
	}
	user.IsTyping = isTyping
	user.LastActive = time.Now()
	return *user, true
}

// TouchActivity 刷新用户活跃时间
// 会话或用户不存在时为空操作
func (s *Store) TouchActivity(sessionId, connId string) {
	if user, ok := s.lookupUser(sessionId, connId); ok {
		user.LastActive = time.Now()
	}
}

// ListUsers 返回名册快照，按加入顺序排列
func (s *Store) ListUsers(sessionId string) []UserSummary {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return []UserSummary{}
	}
	list := make([]UserSummary, 0, len(sess.users))
	for _, connId := range sess.order {
		user, ok := sess.users[connId]
		if !ok {
			continue
		}
		list = append(list, UserSummary{
			Id:       connId,
			Name:     user.Name,
			Color:    user.Color,
			Cursor:   user.Cursor,
			IsTyping: user.IsTyping,
		})
	}
	return list
}

// AppendComment 向会话追加评论
// 会话不存在时返回 false
func (s *Store) AppendComment(sessionId string, comment Comment) bool {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return false
	}
	sess.comments = append(sess.comments, comment)
	return true
}

// Comments 返回会话的评论日志快照，按到达顺序排列
func (s *Store) Comments(sessionId string) []Comment {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return []Comment{}
	}
	out := make([]Comment, len(sess.comments))
	copy(out, sess.comments)
	return out
}

// EvictInactive 移除所有 lastActive 距今超过阈值的用户，返回被移除的连接 ID
// 本方法不级联淘汰清空的会话，由调用方配合 EvictIfEmpty 应用会话淘汰规则
func (s *Store) EvictInactive(sessionId string, threshold time.Duration) []string {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return nil
	}
	now := time.Now()
	var removed []string
	for connId, user := range sess.users {
		if now.Sub(user.LastActive) > threshold {
			delete(sess.users, connId)
			removed = append(removed, connId)
		}
	}
	for _, connId := range removed {
		sess.dropFromOrder(connId)
	}
	return removed
}

// EvictIfEmpty 淘汰名册已空的会话，返回是否发生了淘汰
func (s *Store) EvictIfEmpty(sessionId string) bool {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return false
	}
	if len(sess.users) > 0 {
		return false
	}
	delete(s.sessions, sessionId)
	return true
}

// AllSessionIds 返回所有在线会话 ID，供周期清理任务遍历
func (s *Store) AllSessionIds() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// UserCount 返回会话当前在线人数
func (s *Store) UserCount(sessionId string) int {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return 0
	}
	return len(sess.users)
}

// lookupUser 查找会话内的用户
func (s *Store) lookupUser(sessionId, connId string) (*ConnectedUser, bool) {
	sess, ok := s.sessions[sessionId]
	if !ok {
		return nil, false
	}
	user, ok := sess.users[connId]
	return user, ok
}

// dropFromOrder 从加入顺序切片中移除连接
func (sess *Session) dropFromOrder(connId string) {
	for i, id := range sess.order {
		if id == connId {
			sess.order = append(sess.order[:i], sess.order[i+1:]...)
			return
		}
	}
}
