package events

import (
	"testing"

	"intentrouter/internal/engine"

	"github.com/stretchr/testify/require"
)

func TestSubjectFor(t *testing.T) {
	tests := map[engine.EventType]string{
		engine.EventIntentVerified: "intentrouter.deposit.verified",
		engine.EventDepositSettled: "intentrouter.deposit.settled",
		engine.EventDepositQueued:  "intentrouter.deposit.queued",
		engine.EventDepositClaimed: "intentrouter.deposit.claimed",
		engine.EventFeeCollected:   "intentrouter.fee.collected",
	}
	for eventType, want := range tests {
		require.Equal(t, want, subjectFor(eventType))
	}

	require.Equal(t, "intentrouter.deposit.unknown", subjectFor(engine.EventType("unknown")))
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(engine.Event{Type: engine.EventDepositSettled})
	p.Close()
}
