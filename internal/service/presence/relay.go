// Package presence 实现了协作评审的核心协议层
// relay.go
// 核心职责：跨实例广播转发抽象
// channel 模式下单实例运行，本地投递已经完成，转发是空操作；
// kafka 模式下广播信封发布到主题，各实例消费后投递给本机成员
package presence

import (
	"context"
	"encoding/json"
)

// BroadcastEnvelope 跨实例广播信封
// InstanceId 标记信封来源实例，消费侧据此跳过自己发布的信封
type BroadcastEnvelope struct {
	InstanceId    string          `json:"instanceId"`
	SessionId     string          `json:"sessionId"`
	ExcludeConnId string          `json:"excludeConnId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Relay 广播转发接口
// channel 模式实现为 ChannelRelay，kafka 模式实现为 KafkaRelay
type Relay interface {
	// Publish 将广播信封转发给其他实例
	Publish(ctx context.Context, env *BroadcastEnvelope) error
	// Start 启动消费循环，将其他实例的信封重新注入引擎循环
	Start(engine *Engine)
	// Close 关闭转发资源
	Close()
}

// ChannelRelay 单机模式转发器
// 会话成员全部在本实例，转发无事可做
type ChannelRelay struct{}

// NewChannelRelay 创建单机转发器
func NewChannelRelay() *ChannelRelay {
	return &ChannelRelay{}
}

// Publish 实现 Relay 接口：单机模式无需转发
func (r *ChannelRelay) Publish(ctx context.Context, env *BroadcastEnvelope) error {
	return nil
}

// Start 实现 Relay 接口：单机模式没有消费循环
func (r *ChannelRelay) Start(engine *Engine) {}

// Close 实现 Relay 接口
func (r *ChannelRelay) Close() {}
