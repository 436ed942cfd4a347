package events

import (
	"encoding/json"
	"fmt"

	"intentrouter/internal/engine"
	"intentrouter/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Deposit lifecycle events publish under intentrouter.deposit.*; fee events
// under intentrouter.fee.*.
var subjects = map[engine.EventType]string{
	engine.EventIntentVerified: "intentrouter.deposit.verified",
	engine.EventDepositSettled: "intentrouter.deposit.settled",
	engine.EventDepositQueued:  "intentrouter.deposit.queued",
	engine.EventDepositClaimed: "intentrouter.deposit.claimed",
	engine.EventFeeCollected:   "intentrouter.fee.collected",
}

// subjectFor maps an event type to its NATS subject. Unknown types land
// under the deposit prefix keyed by their raw type string.
func subjectFor(t engine.EventType) string {
	if s, ok := subjects[t]; ok {
		return s
	}
	return "intentrouter.deposit." + string(t)
}

// Publisher forwards engine lifecycle events to NATS. A nil Publisher is
// valid and drops everything, so callers can wire it unconditionally.
type Publisher struct {
	conn *nats.Conn
	log  *logrus.Entry
}

// Connect dials NATS and returns a ready publisher.
func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			metrics.NATSConnectionStatus.Set(0)
			logrus.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			metrics.NATSConnectionStatus.Set(1)
			logrus.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &Publisher{
		conn: conn,
		log:  logrus.WithField("component", "events"),
	}, nil
}

// Publish implements engine.EventSink. Delivery is fire-and-forget; a
// publish failure is logged and counted, never propagated into the
// settlement path.
func (p *Publisher) Publish(event engine.Event) {
	if p == nil || p.conn == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("marshal event")
		return
	}

	subject := subjectFor(event.Type)
	if err := p.conn.Publish(subject, payload); err != nil {
		metrics.EventsDropped.WithLabelValues("nats").Inc()
		p.log.WithFields(logrus.Fields{
			"subject":   subject,
			"intent_id": event.IntentID,
		}).WithError(err).Warn("publish event failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
	metrics.NATSConnectionStatus.Set(0)
}
