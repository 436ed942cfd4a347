package services

import (
	"sync"

	"intentrouter/internal/engine"
	"intentrouter/internal/metrics"

	"github.com/sirupsen/logrus"
)

const clientBuffer = 16

// PushService fans engine lifecycle events out to websocket subscribers.
// Subscriptions are keyed by the lowercase user address; an empty address
// subscribes to everything (admin dashboards).
type PushService struct {
	mu      sync.RWMutex
	clients map[*Subscription]struct{}
	log     *logrus.Entry
}

// Subscription is one connected client. Events the client cannot keep up
// with are dropped rather than blocking the settlement path.
type Subscription struct {
	User   string
	Events chan engine.Event
}

func NewPushService() *PushService {
	return &PushService{
		clients: make(map[*Subscription]struct{}),
		log:     logrus.WithField("component", "push"),
	}
}

// Subscribe registers a client for events of one user (or all users when
// user is empty).
func (s *PushService) Subscribe(user string) *Subscription {
	sub := &Subscription{
		User:   user,
		Events: make(chan engine.Event, clientBuffer),
	}
	s.mu.Lock()
	s.clients[sub] = struct{}{}
	s.mu.Unlock()

	metrics.WebSocketClients.Inc()
	return sub
}

// Unsubscribe removes a client and closes its channel.
func (s *PushService) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	_, ok := s.clients[sub]
	delete(s.clients, sub)
	s.mu.Unlock()

	if ok {
		close(sub.Events)
		metrics.WebSocketClients.Dec()
	}
}

// Publish implements engine.EventSink.
func (s *PushService) Publish(event engine.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.clients {
		if sub.User != "" && sub.User != event.User {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			metrics.EventsDropped.WithLabelValues("websocket").Inc()
		}
	}
}
