package events

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesByEventType(t *testing.T) {
	tests := []struct {
		name  string
		event any
		check func(t *testing.T, decoded any)
	}{
		{
			name: "user event",
			event: UserEvent{
				Envelope: NewEnvelope(EventUserCreated),
				UserID:   42,
				Username: "alice",
			},
			check: func(t *testing.T, decoded any) {
				ev, ok := decoded.(*UserEvent)
				require.True(t, ok)
				assert.Equal(t, uint64(42), ev.UserID)
				assert.Equal(t, "alice", ev.Username)
			},
		},
		{
			name: "treasury transfer event",
			event: TreasuryEvent{
				Envelope:      NewEnvelope(EventTreasuryFundsTransferred),
				FromAccountID: 1,
				ToAccountID:   2,
				Amount:        decimal.NewFromInt(250),
				Currency:      "USD",
			},
			check: func(t *testing.T, decoded any) {
				ev, ok := decoded.(*TreasuryEvent)
				require.True(t, ok)
				assert.Equal(t, uint64(1), ev.FromAccountID)
				assert.Equal(t, uint64(2), ev.ToAccountID)
				assert.True(t, decimal.NewFromInt(250).Equal(ev.Amount))
			},
		},
		{
			name: "collateral event",
			event: CollateralEvent{
				Envelope:      NewEnvelope(EventCollateralRevalued),
				CollateralID:  7,
				EligibleValue: decimal.NewFromInt(850000),
			},
			check: func(t *testing.T, decoded any) {
				ev, ok := decoded.(*CollateralEvent)
				require.True(t, ok)
				assert.Equal(t, uint64(7), ev.CollateralID)
			},
		},
		{
			name: "audit event",
			event: AuditEvent{
				Envelope:   NewEnvelope(EventAuditAction),
				EntityType: "user",
				EntityID:   "42",
				Action:     "LOGIN",
			},
			check: func(t *testing.T, decoded any) {
				ev, ok := decoded.(*AuditEvent)
				require.True(t, ok)
				assert.Equal(t, "LOGIN", ev.Action)
			},
		},
		{
			name: "notification event",
			event: NotificationEvent{
				Envelope: NewEnvelope(EventLowBalanceAlert),
				Subject:  "low balance on account ACC-100",
				Severity: "WARN",
			},
			check: func(t *testing.T, decoded any) {
				ev, ok := decoded.(*NotificationEvent)
				require.True(t, ok)
				assert.Equal(t, "WARN", ev.Severity)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			require.NoError(t, err)

			decoded, err := Decode(payload)
			require.NoError(t, err)
			tt.check(t, decoded)
		})
	}
}

func TestDecodeUnknownEventType(t *testing.T) {
	payload, err := json.Marshal(Envelope{EventType: "SOMETHING_ELSE"})
	require.NoError(t, err)

	_, err = Decode(payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestNewEnvelopeFillsHeader(t *testing.T) {
	env := NewEnvelope(EventUserCreated)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventUserCreated, env.EventType)
	assert.Equal(t, EventSource, env.Source)
	assert.Equal(t, EventVersion, env.Version)
	assert.False(t, env.Timestamp.IsZero())
}
