// Package presence 实现了协作评审的核心协议层
// engine.go
// 核心职责：会话协同引擎
// 1. 单写者事件循环：所有会话状态变更都在这一个循环内完成，Store 因此无锁
// 2. 处理加入/离开/代码/光标/输入状态事件，维护名册并广播
// 3. 网关 I/O 和沙箱执行在循环外进行，结果以命令形式重新进入循环
// 4. 周期性空闲清理同样作为循环内的事件处理
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab_review_server/internal/dto/respond"
	"collab_review_server/internal/service/gateway"
	"collab_review_server/internal/service/sandbox"
	"collab_review_server/internal/service/store"
	"collab_review_server/pkg/constants"
	"collab_review_server/pkg/errorx"
)

// inboundEvent 连接上行事件
type inboundEvent struct {
	conn  *SessionConn
	event Event
}

// PresenceSnapshot 会话在线状态快照，供 HTTP 层查询
type PresenceSnapshot struct {
	Live  bool
	Users []store.UserSummary
}

// EngineConfig 引擎配置
type EngineConfig struct {
	Store         *store.Store
	Gateway       gateway.SessionGateway
	Sandbox       *sandbox.Executor
	Relay         Relay
	IdleThreshold time.Duration // 空闲用户清理阈值
	SweepInterval time.Duration // 清理任务执行间隔
}

// Engine 会话协同引擎
// store 只能在 Start 循环内访问，引擎外部通过通道与循环交互
type Engine struct {
	store   *store.Store
	gateway gateway.SessionGateway
	sandbox *sandbox.Executor
	relay   Relay

	// instanceId 实例标识，用于跨实例广播的回声过滤
	instanceId string

	idleThreshold time.Duration
	sweepInterval time.Duration

	inbound  chan inboundEvent
	commands chan func()
	logout   chan *SessionConn

	// relayOut 待发布的广播信封，由单个发布协程顺序消费
	relayOut chan *BroadcastEnvelope

	// done 引擎循环退出后关闭，阻塞式查询以此解除等待
	done chan struct{}

	// conns 已加入会话的连接，connId -> SessionConn
	// 仅由循环读写
	conns map[string]*SessionConn
}

// NewEngine 创建引擎实例，零值配置项回落到默认值
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = constants.INACTIVE_THRESHOLD
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.SWEEP_INTERVAL
	}
	if cfg.Relay == nil {
		cfg.Relay = NewChannelRelay()
	}
	return &Engine{
		store:         cfg.Store,
		gateway:       cfg.Gateway,
		sandbox:       cfg.Sandbox,
		relay:         cfg.Relay,
		instanceId:    uuid.NewString(),
		idleThreshold: cfg.IdleThreshold,
		sweepInterval: cfg.SweepInterval,
		inbound:       make(chan inboundEvent, constants.CHANNEL_SIZE),
		commands:      make(chan func(), constants.CHANNEL_SIZE),
		logout:        make(chan *SessionConn, constants.CHANNEL_SIZE),
		relayOut:      make(chan *BroadcastEnvelope, constants.CHANNEL_SIZE),
		done:          make(chan struct{}),
		conns:         make(map[string]*SessionConn),
	}
}

// InstanceId 返回实例标识
func (e *Engine) InstanceId() string {
	return e.instanceId
}

// Start 启动引擎主循环（阻塞，应在独立协程中运行）
// ctx 取消后循环退出并释放转发器资源
func (e *Engine) Start(ctx context.Context) {
	defer close(e.done)
	e.relay.Start(e)
	go e.publishLoop(ctx)
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-e.inbound:
			e.handleEvent(ev.conn, ev.event)
		case fn := <-e.commands:
			fn()
		case conn := <-e.logout:
			e.handleDisconnect(conn)
		case <-ticker.C:
			e.handleSweep()
		case <-ctx.Done():
			e.relay.Close()
			return
		}
	}
}

// DispatchEvent 将连接上行事件投递到引擎循环
func (e *Engine) DispatchEvent(conn *SessionConn, event Event) {
	e.inbound <- inboundEvent{conn: conn, event: event}
}

// Disconnect 连接断开时调用，走统一的离开路径
func (e *Engine) Disconnect(conn *SessionConn) {
	e.logout <- conn
}

// DeliverEnvelope 将其他实例的广播信封注入循环，投递给本机成员
func (e *Engine) DeliverEnvelope(env *BroadcastEnvelope) {
	e.commands <- func() {
		e.deliverLocal(env.SessionId, env.ExcludeConnId, env.Payload)
	}
}

// BroadcastEvent 向整个会话广播事件（HTTP 层使用，如执行结果）
func (e *Engine) BroadcastEvent(sessionId string, event string, data any) {
	e.commands <- func() {
		e.broadcast(sessionId, "", encodeEvent(event, data))
	}
}

// AppendLiveComment 将已持久化的新评论并入在线评论日志并广播
// 在线日志与持久化日志保持一致，后加入者的 comments-init 才能看到这条评论；
// 会话不在线时日志不存在，仅执行广播
func (e *Engine) AppendLiveComment(sessionId string, comment respond.CommentRespond) {
	e.commands <- func() {
		e.store.AppendComment(sessionId, commentFromRespond(comment))
		e.broadcast(sessionId, "", encodeEvent(EventCommentAdded, comment))
	}
}

// SyncLiveCode 将持久化保存的代码同步到在线缓冲区
// 会话不在线时无事可做
func (e *Engine) SyncLiveCode(sessionId string, code string) {
	e.commands <- func() {
		e.store.UpdateCode(sessionId, code)
	}
}

// Presence 查询会话在线状态快照
// 引擎循环已退出时立刻返回零值快照，HTTP 层在停机过程中不会悬挂
func (e *Engine) Presence(sessionId string) PresenceSnapshot {
	reply := make(chan PresenceSnapshot, 1)
	query := func() {
		_, live := e.store.Get(sessionId)
		reply <- PresenceSnapshot{Live: live, Users: e.store.ListUsers(sessionId)}
	}
	select {
	case e.commands <- query:
	case <-e.done:
		return PresenceSnapshot{}
	}
	select {
	case snapshot := <-reply:
		return snapshot
	case <-e.done:
		return PresenceSnapshot{}
	}
}

// handleEvent 按事件类型分发（循环内）
func (e *Engine) handleEvent(conn *SessionConn, event Event) {
	switch event.Event {
	case EventJoinSession:
		e.handleJoin(conn, event)
	case EventCodeChange:
		e.handleCodeChange(conn, event)
	case EventCursorUpdate:
		e.handleCursorUpdate(conn, event)
	case EventTypingStart:
		e.handleTyping(conn, event, true)
	case EventTypingStop:
		e.handleTyping(conn, event, false)
	case EventLeaveSession:
		e.handleLeave(conn)
	case EventSaveCode:
		e.handleSaveCode(conn, event)
	case EventRunRequest:
		e.handleRunRequest(conn, event)
	default:
		zap.L().Debug("未知事件类型", zap.String("event", event.Event))
	}
}

// handleJoin 处理加入会话
// 会话已在线时直接完成；否则先在循环外加载持久化快照，
// 结果作为命令重新进入循环后再落名册（期间状态可能已变，重新检查）
func (e *Engine) handleJoin(conn *SessionConn, event Event) {
	var data JoinSessionData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.SessionId == "" {
		conn.send(encodeEvent(EventError, ErrorData{Message: "Invalid join payload"}))
		return
	}

	if _, live := e.store.Get(data.SessionId); live {
		e.completeJoin(conn, data, "", nil)
		return
	}

	go func() {
		record, err := e.gateway.Load(data.SessionId)
		if err != nil {
			e.commands <- func() { e.failJoin(conn, data.SessionId, err) }
			return
		}
		// 评论日志尽力而为：网关故障时降级为空日志，加入仍然成功
		comments, err := e.gateway.Comments(data.SessionId)
		if err != nil {
			zap.L().Warn("加载评论日志失败，降级为空日志",
				zap.String("session_id", data.SessionId),
				zap.Error(err),
			)
			comments = nil
		}
		e.commands <- func() { e.completeJoin(conn, data, record.Code, comments) }
	}()
}

// failJoin 加入失败，仅通知当事连接，状态不发生任何变更
func (e *Engine) failJoin(conn *SessionConn, sessionId string, err error) {
	message := "Failed to join session"
	if errorx.IsNotFound(err) {
		message = "Session not found"
	} else {
		zap.L().Error("加入会话失败",
			zap.String("session_id", sessionId),
			zap.String("conn_id", conn.ConnId),
			zap.Error(err),
		)
	}
	conn.send(encodeEvent(EventError, ErrorData{Message: message}))
}

// completeJoin 在循环内完成加入（会话上线、落名册、发初始状态、广播名册）
func (e *Engine) completeJoin(conn *SessionConn, data JoinSessionData, seedCode string, persisted []respond.CommentRespond) {
	// 加载快照期间连接可能已断开，不再落名册
	if conn.closed {
		return
	}
	// 一个连接同一时间至多加入一个会话
	if conn.sessionId != "" && conn.sessionId != data.SessionId {
		e.handleLeave(conn)
	}

	created := false
	sess := e.store.GetOrCreate(data.SessionId, func() string {
		created = true
		return seedCode
	})
	if created {
		// 首次上线：持久化评论日志灌入在线日志
		for _, c := range persisted {
			e.store.AppendComment(data.SessionId, commentFromRespond(c))
		}
	}

	e.store.AddUser(data.SessionId, conn.ConnId, data.UserName, data.UserColor)
	conn.sessionId = data.SessionId
	e.conns[conn.ConnId] = conn

	// 加入者先收到完整评论日志和当前代码，再和全员一起收到名册
	conn.send(encodeEvent(EventCommentsInit, e.store.Comments(data.SessionId)))
	conn.send(encodeEvent(EventCodeUpdate, sess.Code))

	users := e.store.ListUsers(data.SessionId)
	e.broadcast(data.SessionId, "", encodeEvent(EventUsersUpdate, users))

	zap.L().Info("用户加入会话",
		zap.String("session_id", data.SessionId),
		zap.String("conn_id", conn.ConnId),
		zap.String("user_name", data.UserName),
		zap.Int("total_users", len(users)),
	)
}

// handleCodeChange 处理代码变更：整体替换缓冲区，回显排除发起者
func (e *Engine) handleCodeChange(conn *SessionConn, event Event) {
	var data CodeChangeData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return
	}
	// 前置条件：连接已加入该会话
	if conn.sessionId == "" || conn.sessionId != data.SessionId {
		return
	}
	if !e.store.UpdateCode(data.SessionId, data.Code) {
		return
	}
	e.store.TouchActivity(data.SessionId, conn.ConnId)
	e.broadcast(data.SessionId, conn.ConnId, encodeEvent(EventCodeUpdate, data.Code))
}

// handleCursorUpdate 处理光标上报，广播排除发起者
func (e *Engine) handleCursorUpdate(conn *SessionConn, event Event) {
	var data CursorUpdateData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return
	}
	if conn.sessionId == "" || conn.sessionId != data.SessionId {
		return
	}
	user, ok := e.store.SetCursor(data.SessionId, conn.ConnId, data.Cursor)
	if !ok {
		return
	}
	e.broadcast(data.SessionId, conn.ConnId, encodeEvent(EventCursorUpdate, CursorBroadcastData{
		UserId:     conn.ConnId,
		UserName:   user.Name,
		UserColor:  user.Color,
		Cursor:     data.Cursor,
		LastActive: user.LastActive.UnixMilli(),
	}))
}

// handleTyping 处理输入状态切换，广播排除发起者
func (e *Engine) handleTyping(conn *SessionConn, event Event, isTyping bool) {
	var data TypingData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return
	}
	if conn.sessionId == "" || conn.sessionId != data.SessionId {
		return
	}
	user, ok := e.store.SetTyping(data.SessionId, conn.ConnId, isTyping)
	if !ok {
		return
	}
	e.broadcast(data.SessionId, conn.ConnId, encodeEvent(EventUserTyping, UserTypingData{
		UserId:    conn.ConnId,
		UserName:  user.Name,
		UserColor: user.Color,
		IsTyping:  isTyping,
	}))
}

// handleLeave 处理离开会话：移出名册、广播剩余名册
// 名册清空时会话随 RemoveUser 一并下线
func (e *Engine) handleLeave(conn *SessionConn) {
	sessionId := conn.sessionId
	if sessionId == "" {
		return
	}
	conn.sessionId = ""
	delete(e.conns, conn.ConnId)
	e.store.RemoveUser(sessionId, conn.ConnId)

	users := e.store.ListUsers(sessionId)
	e.broadcast(sessionId, "", encodeEvent(EventUsersUpdate, users))

	zap.L().Info("用户离开会话",
		zap.String("session_id", sessionId),
		zap.String("conn_id", conn.ConnId),
		zap.Int("remaining_users", len(users)),
	)
}

// handleSaveCode 通过长连接持久化代码
// 在线缓冲区同步更新，落库在循环外进行，结果只回给发起者
func (e *Engine) handleSaveCode(conn *SessionConn, event Event) {
	var data SaveCodeData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return
	}
	if conn.sessionId == "" || conn.sessionId != data.SessionId {
		conn.send(encodeEvent(EventSaveError, SaveResultData{SessionId: data.SessionId, Message: "Not joined to session"}))
		return
	}
	e.store.UpdateCode(data.SessionId, data.Code)
	e.store.TouchActivity(data.SessionId, conn.ConnId)

	go func() {
		err := e.gateway.SaveCode(data.SessionId, data.Code)
		e.commands <- func() {
			if err != nil {
				zap.L().Error("保存代码快照失败",
					zap.String("session_id", data.SessionId),
					zap.Error(err),
				)
				conn.send(encodeEvent(EventSaveError, SaveResultData{SessionId: data.SessionId, Message: "Failed to save code"}))
				return
			}
			conn.send(encodeEvent(EventSaveSuccess, SaveResultData{SessionId: data.SessionId}))
		}
	}()
}

// handleRunRequest 处理沙箱执行请求
// 执行在循环外进行，结果广播给全会话（包括发起者）
func (e *Engine) handleRunRequest(conn *SessionConn, event Event) {
	var data RunRequestData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.SessionId == "" {
		return
	}
	go func() {
		result := e.sandbox.Execute(context.Background(), data.Code, 0)
		e.BroadcastEvent(data.SessionId, EventRunOutput, RunResultToRespond(result))
	}()
}

// handleDisconnect 连接断开的统一收尾
// closed 先置位再关通道，晚到的加入完成/保存回执命令不会再触碰 SendBack
func (e *Engine) handleDisconnect(conn *SessionConn) {
	e.handleLeave(conn)
	conn.closed = true
	close(conn.SendBack)
	if conn.Conn != nil {
		_ = conn.Conn.Close()
	}
}

// handleSweep 周期性空闲清理
// 被清理的用户没有显式离开信号，名册变更同样广播；名册清空的会话随之下线
func (e *Engine) handleSweep() {
	for _, sessionId := range e.store.AllSessionIds() {
		removed := e.store.EvictInactive(sessionId, e.idleThreshold)
		if len(removed) == 0 {
			continue
		}
		for _, connId := range removed {
			if c, ok := e.conns[connId]; ok {
				c.sessionId = ""
				delete(e.conns, connId)
			}
		}
		zap.L().Info("清理空闲用户",
			zap.String("session_id", sessionId),
			zap.Int("removed", len(removed)),
		)
		e.broadcast(sessionId, "", encodeEvent(EventUsersUpdate, e.store.ListUsers(sessionId)))
		if e.store.EvictIfEmpty(sessionId) {
			zap.L().Info("空会话下线", zap.String("session_id", sessionId))
		}
	}
}

// broadcast 向会话广播（循环内）
// 本地成员直接投递，信封进入发布队列经转发器发给其他实例；
// exclude 为发起者连接 ID。队列满时丢弃信封，不阻塞循环
func (e *Engine) broadcast(sessionId, exclude string, payload []byte) {
	if payload == nil {
		return
	}
	e.deliverLocal(sessionId, exclude, payload)

	env := &BroadcastEnvelope{
		InstanceId:    e.instanceId,
		SessionId:     sessionId,
		ExcludeConnId: exclude,
		Payload:       payload,
	}
	select {
	case e.relayOut <- env:
	default:
		zap.L().Warn("发布队列已满，丢弃广播信封", zap.String("session_id", sessionId))
	}
}

// publishLoop 顺序发布广播信封
// 单协程按入队顺序消费，同一会话的信封以广播顺序到达转发器
func (e *Engine) publishLoop(ctx context.Context) {
	for {
		select {
		case env := <-e.relayOut:
			if err := e.relay.Publish(ctx, env); err != nil {
				zap.L().Error("发布广播信封失败",
					zap.String("session_id", env.SessionId),
					zap.Error(err),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// deliverLocal 向本机的会话成员投递
func (e *Engine) deliverLocal(sessionId, exclude string, payload []byte) {
	for _, user := range e.store.ListUsers(sessionId) {
		if user.Id == exclude {
			continue
		}
		if c, ok := e.conns[user.Id]; ok {
			c.send(payload)
		}
	}
}

// commentFromRespond 持久化评论转在线评论
func commentFromRespond(c respond.CommentRespond) store.Comment {
	createdAt, err := time.Parse(time.RFC3339, c.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}
	return store.Comment{
		Id:          c.Id,
		Content:     c.Content,
		LineNumber:  c.LineNumber,
		AuthorId:    c.AuthorId,
		AuthorName:  c.AuthorName,
		AuthorColor: c.Color,
		CreatedAt:   createdAt,
	}
}

// RunResultToRespond 沙箱结果转响应载荷
func RunResultToRespond(result sandbox.Result) respond.RunResultRespond {
	rsp := respond.RunResultRespond{Output: result.Output}
	if result.Err != "" {
		msg := result.Err
		rsp.Error = &msg
	}
	return rsp
}
