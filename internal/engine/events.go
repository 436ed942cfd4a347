package engine

import (
	"time"
)

// EventType labels one lifecycle notification.
type EventType string

const (
	EventIntentVerified EventType = "intent_verified"
	EventDepositSettled EventType = "deposit_settled"
	EventDepositQueued  EventType = "deposit_queued"
	EventDepositClaimed EventType = "deposit_claimed"
	EventFeeCollected   EventType = "fee_collected"
)

// Event is one lifecycle notification fanned out to the configured sinks
// (NATS publisher, websocket hub, metrics).
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	IntentID string    `json:"intent_id"`
	User     string    `json:"user"`
	Vault    string    `json:"vault,omitempty"`
	Asset    string    `json:"asset,omitempty"`
	// Amount is the net amount forwarded to the vault.
	Amount      string    `json:"amount,omitempty"`
	ReferrerFee string    `json:"referrer_fee,omitempty"`
	ProtocolFee string    `json:"protocol_fee,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventSink receives lifecycle events. Implementations must not block the
// settlement path; slow consumers drop or buffer on their side.
type EventSink interface {
	Publish(event Event)
}
