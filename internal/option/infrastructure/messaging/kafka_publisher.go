package messaging

import (
	"context"
	"time"

	"github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/pkg/mq"
)

// kafkaPublisher 基于 Kafka 的事件发布者实现
type kafkaPublisher struct {
	producer *mq.Producer
	topic    string
}

// NewKafkaPublisher 创建事件发布者，所有事件发往同一主题，按协议 ID 分区
func NewKafkaPublisher(producer *mq.Producer, topic string) domain.EventPublisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

// Envelope 事件外壳，携带类型与发生时间供消费方路由
type Envelope struct {
	EventType   string    `json:"event_type"`
	Key         string    `json:"key"`
	Payload     any       `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// Publish 发布事件
func (p *kafkaPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	return p.producer.SendMessage(ctx, p.topic, key, Envelope{
		EventType:   eventType,
		Key:         key,
		Payload:     event,
		PublishedAt: time.Now(),
	})
}
