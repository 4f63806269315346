// Package events 领域事件定义
// 事件是带 event_type 判别字段的扁平 JSON，消费端通过 Decode 还原具体类型。
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
)

// 事件主题，分区键为实体 ID
const (
	TopicUserEvents         = "user-events"
	TopicTreasuryEvents     = "treasury-events"
	TopicCollateralEvents   = "collateral-events"
	TopicAuditEvents        = "audit-events"
	TopicNotificationEvents = "notification-events"
)

// EventSource 事件来源标识
const EventSource = "kps-treasury"

// EventVersion 事件结构版本
const EventVersion = "1.0"

// EventType 事件判别类型
type EventType string

const (
	// 用户事件
	EventUserCreated         EventType = "USER_CREATED"
	EventUserUpdated         EventType = "USER_UPDATED"
	EventUserDeleted         EventType = "USER_DELETED"
	EventUserEnabled         EventType = "USER_ENABLED"
	EventUserDisabled        EventType = "USER_DISABLED"
	EventUserPasswordChanged EventType = "USER_PASSWORD_CHANGED"

	// 司库账户事件
	EventTreasuryCreated          EventType = "TREASURY_ACCOUNT_CREATED"
	EventTreasuryUpdated          EventType = "TREASURY_ACCOUNT_UPDATED"
	EventTreasuryDeleted          EventType = "TREASURY_ACCOUNT_DELETED"
	EventTreasuryBalanceUpdated   EventType = "TREASURY_BALANCE_UPDATED"
	EventTreasuryStatusChanged    EventType = "TREASURY_STATUS_CHANGED"
	EventTreasuryFundsTransferred EventType = "TREASURY_FUNDS_TRANSFERRED"

	// 抵押品事件
	EventCollateralCreated       EventType = "COLLATERAL_CREATED"
	EventCollateralUpdated       EventType = "COLLATERAL_UPDATED"
	EventCollateralDeleted       EventType = "COLLATERAL_DELETED"
	EventCollateralRevalued      EventType = "COLLATERAL_REVALUED"
	EventCollateralStatusChanged EventType = "COLLATERAL_STATUS_CHANGED"
	EventCollateralMatured       EventType = "COLLATERAL_MATURED"

	// 审计与通知事件
	EventAuditAction       EventType = "AUDIT_ACTION"
	EventLowBalanceAlert   EventType = "LOW_BALANCE_ALERT"
	EventMaturityAlert     EventType = "MATURITY_ALERT"
	EventGeneralNotice     EventType = "GENERAL_NOTICE"
)

// Envelope 所有事件的公共头
type Envelope struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewEnvelope 填充事件公共头
func NewEnvelope(eventType EventType) Envelope {
	return Envelope{
		EventID:   idgen.GenIDString(),
		EventType: eventType,
		Timestamp: time.Now(),
		Source:    EventSource,
		Version:   EventVersion,
	}
}

// UserEvent 用户事件
type UserEvent struct {
	Envelope
	UserID      uint64 `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// TreasuryEvent 司库账户事件
// 转账事件同时携带转出与转入账户 ID。
type TreasuryEvent struct {
	Envelope
	AccountID     uint64          `json:"account_id,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	FromAccountID uint64          `json:"from_account_id,omitempty"`
	ToAccountID   uint64          `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Status        string          `json:"status,omitempty"`
	PerformedBy   string          `json:"performed_by,omitempty"`
}

// CollateralEvent 抵押品事件
type CollateralEvent struct {
	Envelope
	CollateralID   uint64          `json:"collateral_id"`
	CollateralType string          `json:"collateral_type,omitempty"`
	MarketValue    decimal.Decimal `json:"market_value,omitempty"`
	EligibleValue  decimal.Decimal `json:"eligible_value,omitempty"`
	Status         string          `json:"status,omitempty"`
	PerformedBy    string          `json:"performed_by,omitempty"`
}

// AuditEvent 审计事件
type AuditEvent struct {
	Envelope
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Action      string `json:"action"`
	PerformedBy string `json:"performed_by"`
	Details     string `json:"details,omitempty"`
}

// NotificationEvent 通知事件
type NotificationEvent struct {
	Envelope
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Severity  string `json:"severity,omitempty"`
}

// Decode 按 event_type 判别字段还原具体事件类型
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.EventType {
	case EventUserCreated, EventUserUpdated, EventUserDeleted,
		EventUserEnabled, EventUserDisabled, EventUserPasswordChanged:
		var ev UserEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode user event: %w", err)
		}
		return &ev, nil

	case EventTreasuryCreated, EventTreasuryUpdated, EventTreasuryDeleted,
		EventTreasuryBalanceUpdated, EventTreasuryStatusChanged, EventTreasuryFundsTransferred:
		var ev TreasuryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode treasury event: %w", err)
		}
		return &ev, nil

	case EventCollateralCreated, EventCollateralUpdated, EventCollateralDeleted,
		EventCollateralRevalued, EventCollateralStatusChanged, EventCollateralMatured:
		var ev CollateralEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode collateral event: %w", err)
		}
		return &ev, nil

	case EventAuditAction:
		var ev AuditEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		return &ev, nil

	case EventLowBalanceAlert, EventMaturityAlert, EventGeneralNotice:
		var ev NotificationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode notification event: %w", err)
		}
		return &ev, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
}
