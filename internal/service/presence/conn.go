// Package presence 实现了协作评审的核心协议层
// conn.go
// 核心职责：WebSocket 连接生命周期管理
// 1. 建立 WebSocket 连接 (Upgrade)
// 2. 封装 SessionConn 对象，管理读写协程 (Read/Write Loop)
// 3. 上行消息投递到引擎循环，下行消息从 SendBack 通道推送给前端
package presence

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collab_review_server/pkg/constants"
)

// SessionConn 单个客户端连接
type SessionConn struct {
	Conn     *websocket.Conn
	ConnId   string
	SendBack chan []byte // 下行消息通道

	engine *Engine

	// sessionId 当前加入的会话，空串表示未加入
	// 仅由引擎循环读写，读写协程不得触碰
	sessionId string

	// closed 连接已走完断开收尾，此后下行投递全部丢弃
	// 仅由引擎循环读写
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// 检查连接的Origin头
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewConnInit 前端发起 WebSocket 连接时调用
// clientId 为空时由服务端分配 uuid
func NewConnInit(c *gin.Context, clientId string, engine *Engine) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	if clientId == "" {
		clientId = uuid.NewString()
	}
	client := &SessionConn{
		Conn:     conn,
		ConnId:   clientId,
		SendBack: make(chan []byte, constants.CHANNEL_SIZE),
		engine:   engine,
	}
	go client.Read()
	go client.Write()
	zap.L().Info("ws连接成功", zap.String("conn_id", clientId))
}

// Read 读取 WebSocket 消息并投递到引擎循环
// 连接断开时走统一的登出路径
func (c *SessionConn) Read() {
	zap.L().Debug("ws read goroutine start", zap.String("conn_id", c.ConnId))
	defer c.engine.Disconnect(c)
	for {
		_, jsonMessage, err := c.Conn.ReadMessage() // 阻塞状态
		if err != nil {
			zap.L().Info("ws连接断开", zap.String("conn_id", c.ConnId), zap.Error(err))
			return
		}
		var event Event
		if err := json.Unmarshal(jsonMessage, &event); err != nil {
			zap.L().Error("解析事件信封失败", zap.String("conn_id", c.ConnId), zap.Error(err))
			continue
		}
		c.engine.DispatchEvent(c, event)
	}
}

// Write 从 SendBack 通道读取消息并发送给前端
func (c *SessionConn) Write() {
	zap.L().Debug("ws write goroutine start", zap.String("conn_id", c.ConnId))
	for message := range c.SendBack { // 阻塞状态
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			zap.L().Error("下行消息发送失败", zap.String("conn_id", c.ConnId), zap.Error(err))
			return
		}
	}
}

// send 非阻塞投递下行消息（仅引擎循环调用）
// 通道满说明客户端消费过慢，丢弃该条消息并记录日志，绝不阻塞引擎循环
// 断开收尾前排队的循环命令仍可能调用到这里，closed 置位后同样丢弃
func (c *SessionConn) send(message []byte) {
	if c.closed || message == nil {
		return
	}
	select {
	case c.SendBack <- message:
	default:
		zap.L().Warn("下行通道已满，丢弃消息", zap.String("conn_id", c.ConnId))
	}
}
