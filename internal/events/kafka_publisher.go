// Package events Kafka 发布适配
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wyfcoding/pkg/messagequeue"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
)

// kafkaEventPublisher 基于 Kafka 生产者的 EventPublisher 实现
type kafkaEventPublisher struct {
	producer *kafka.Producer
}

var _ messagequeue.EventPublisher = (*kafkaEventPublisher)(nil)

// NewKafkaEventPublisher 创建 Kafka 事件发布适配器
func NewKafkaEventPublisher(producer *kafka.Producer) messagequeue.EventPublisher {
	return &kafkaEventPublisher{producer: producer}
}

// Publish 序列化为 JSON 后投递到指定主题
func (p *kafkaEventPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for topic %s: %w", topic, err)
	}
	return p.producer.PublishToTopic(ctx, topic, []byte(key), payload)
}

// PublishInTx 本系统事件不入库，事务内发布退化为普通发布
func (p *kafkaEventPublisher) PublishInTx(ctx context.Context, _ any, topic string, key string, event any) error {
	return p.Publish(ctx, topic, key, event)
}
