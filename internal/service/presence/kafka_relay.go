// Package presence 实现了协作评审的核心协议层
// kafka_relay.go
// 核心职责：Kafka 模式的跨实例广播转发
// 1. 封装 Kafka 底层连接 (Writer/Reader)
// 2. 发布本实例的广播信封，消费其他实例的信封
// 3. 纯技术组件，不包含会话业务逻辑
package presence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	myconfig "collab_review_server/internal/config"
)

// KafkaRelay Kafka 模式转发器
type KafkaRelay struct {
	Producer *kafka.Writer // 生产者：发布本实例的广播信封
	Consumer *kafka.Reader // 消费者：读取全量广播信封

	cancel context.CancelFunc
}

// NewKafkaRelay 根据配置创建并初始化 Kafka 转发器
func NewKafkaRelay() *KafkaRelay {
	kafkaConfig := myconfig.GetConfig().KafkaConfig
	r := &KafkaRelay{}
	r.Producer = &kafka.Writer{
		Addr:                   kafka.TCP(kafkaConfig.HostPort),
		Topic:                  kafkaConfig.EventTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           kafkaConfig.Timeout * time.Second,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: false,
	}
	// 每个实例独立消费组，广播信封需要送达所有实例
	r.Consumer = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{kafkaConfig.HostPort},
		Topic:          kafkaConfig.EventTopic,
		CommitInterval: kafkaConfig.Timeout * time.Second,
		GroupID:        "collab_relay_" + strconv.FormatInt(time.Now().UnixNano(), 10),
		StartOffset:    kafka.LastOffset,
	})
	return r
}

// Publish 实现 Relay 接口：发布广播信封
// 以会话 ID 为分区键，保证同一会话的广播在主题内有序
func (r *KafkaRelay) Publish(ctx context.Context, env *BroadcastEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.Producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.SessionId),
		Value: data,
	})
}

// Start 实现 Relay 接口：启动消费循环
// 消费到的信封重新注入引擎循环，由循环投递给本机成员；
// 本实例发布的信封（本地已投递）按 InstanceId 跳过
func (r *KafkaRelay) Start(engine *Engine) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		for {
			message, err := r.Consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Error("读取广播信封失败", zap.Error(err))
				continue
			}
			var env BroadcastEnvelope
			if err := json.Unmarshal(message.Value, &env); err != nil {
				zap.L().Error("解析广播信封失败", zap.Error(err))
				continue
			}
			if env.InstanceId == engine.InstanceId() {
				continue
			}
			engine.DeliverEnvelope(&env)
		}
	}()
}

// Close 实现 Relay 接口：关闭 Kafka 资源
func (r *KafkaRelay) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if err := r.Producer.Close(); err != nil {
		zap.L().Error(err.Error())
	}
	if err := r.Consumer.Close(); err != nil {
		zap.L().Error(err.Error())
	}
}
