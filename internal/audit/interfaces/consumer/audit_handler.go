// Package consumer 审计事件消费端
// 解码失败或未知事件类型视为处理失败，交给传输层重投；成功处理返回 nil 确认。
package consumer

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/kpstreasury/internal/events"
)

// AuditHandler 把全部领域事件落成结构化审计日志
type AuditHandler struct {
	logger *slog.Logger
}

func NewAuditHandler(logger *slog.Logger) *AuditHandler {
	return &AuditHandler{logger: logger.With("module", "audit")}
}

func (h *AuditHandler) Handle(ctx context.Context, msg kafka.Message) error {
	decoded, err := events.Decode(msg.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to decode event", "topic", msg.Topic, "error", err)
		return err
	}

	switch ev := decoded.(type) {
	case *events.UserEvent:
		h.logger.InfoContext(ctx, "user event",
			"event_id", ev.EventID, "event_type", ev.EventType,
			"user_id", ev.UserID, "username", ev.Username, "performed_by", ev.PerformedBy)
	case *events.TreasuryEvent:
		h.logger.InfoContext(ctx, "treasury event",
			"event_id", ev.EventID, "event_type", ev.EventType,
			"account_id", ev.AccountID, "from_account_id", ev.FromAccountID,
			"to_account_id", ev.ToAccountID, "amount", ev.Amount, "performed_by", ev.PerformedBy)
	case *events.CollateralEvent:
		h.logger.InfoContext(ctx, "collateral event",
			"event_id", ev.EventID, "event_type", ev.EventType,
			"collateral_id", ev.CollateralID, "status", ev.Status, "performed_by", ev.PerformedBy)
	case *events.AuditEvent:
		h.logger.InfoContext(ctx, "audit event",
			"event_id", ev.EventID, "entity_type", ev.EntityType, "entity_id", ev.EntityID,
			"action", ev.Action, "performed_by", ev.PerformedBy, "details", ev.Details)
	case *events.NotificationEvent:
		// 低余额/到期提醒类通知统一提级记录
		h.logger.WarnContext(ctx, "notification event",
			"event_id", ev.EventID, "event_type", ev.EventType,
			"subject", ev.Subject, "message", ev.Message, "severity", ev.Severity)
	default:
		h.logger.WarnContext(ctx, "unhandled event kind", "topic", msg.Topic)
	}
	return nil
}
