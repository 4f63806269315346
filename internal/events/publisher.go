// Package events 事件发布器
package events

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/wyfcoding/pkg/messagequeue"
)

// Publisher 即发即弃的事件发布器
// 只在主事务提交之后调用；发布失败记日志后丢弃，绝不向调用方返回错误。
type Publisher struct {
	mq     messagequeue.EventPublisher
	logger *slog.Logger
}

// NewPublisher 创建事件发布器
func NewPublisher(mq messagequeue.EventPublisher, logger *slog.Logger) *Publisher {
	return &Publisher{mq: mq, logger: logger.With("module", "events")}
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event any, eventType EventType) {
	if err := p.mq.Publish(ctx, topic, key, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			"topic", topic, "key", key, "event_type", eventType, "error", err)
	}
}

// User 发布用户事件，分区键为用户 ID
func (p *Publisher) User(ctx context.Context, ev UserEvent) {
	p.publish(ctx, TopicUserEvents, strconv.FormatUint(ev.UserID, 10), ev, ev.EventType)
}

// Treasury 发布司库账户事件，分区键为账户 ID（转账用转出账户）
func (p *Publisher) Treasury(ctx context.Context, ev TreasuryEvent) {
	key := ev.AccountID
	if key == 0 {
		key = ev.FromAccountID
	}
	p.publish(ctx, TopicTreasuryEvents, strconv.FormatUint(key, 10), ev, ev.EventType)
}

// Collateral 发布抵押品事件，分区键为抵押品 ID
func (p *Publisher) Collateral(ctx context.Context, ev CollateralEvent) {
	p.publish(ctx, TopicCollateralEvents, strconv.FormatUint(ev.CollateralID, 10), ev, ev.EventType)
}

// Audit 发布审计事件，分区键为实体 ID
func (p *Publisher) Audit(ctx context.Context, ev AuditEvent) {
	p.publish(ctx, TopicAuditEvents, ev.EntityID, ev, ev.EventType)
}

// Notification 发布通知事件
func (p *Publisher) Notification(ctx context.Context, ev NotificationEvent) {
	p.publish(ctx, TopicNotificationEvents, ev.EventID, ev, ev.EventType)
}
