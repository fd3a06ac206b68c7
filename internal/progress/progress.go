// Package progress implements the progress bus (component C8): an
// in-process topic hub keyed by session_id, with a wildcard subscription
// for dashboards, bounded/droppable subscriber buffers, and idle
// heartbeats so HTTP intermediaries never see a silent connection.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/metrics"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// Wildcard is the topic dashboards subscribe to in order to observe
// every session's events.
const Wildcard = "*"

// DefaultBufferSize is the bounded subscriber channel capacity
// (spec.md §4.8).
const DefaultBufferSize = 256

// IdleHeartbeatInterval is how often an idle subscriber receives a
// heartbeat event so intermediaries don't close the stream.
const IdleHeartbeatInterval = 15 * time.Second

// subscriber is one open channel on a topic plus its drop counter.
type subscriber struct {
	ch      chan model.ProgressEvent
	dropped int64
}

// Subscription is the handle a caller holds for one open subscription.
type Subscription struct {
	Events <-chan model.ProgressEvent

	bus       *Bus
	sessionID string
	sub       *subscriber
	stopHB    chan struct{}
	closeOnce sync.Once
}

// Dropped returns the number of events dropped for this subscriber
// because its buffer was full when Publish ran.
func (s *Subscription) Dropped() int64 {
	return atomic.LoadInt64(&s.sub.dropped)
}

// Unsubscribe removes this subscription from its topic and stops its
// idle-heartbeat ticker. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		close(s.stopHB)
		s.bus.remove(s.sessionID, s.sub)
		close(s.sub.ch)
	})
}

// Bus is the topic hub. Publishers never block on a slow subscriber;
// the bus increments a dropped-event counter for that subscriber
// instead (spec.md §4.8 "backpressure — never block the pipeline").
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscriber
	logger *zap.Logger
}

// New builds an empty Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{topics: make(map[string][]*subscriber), logger: logger}
}

// Subscribe opens a bounded channel on sessionID (or Wildcard for every
// session) and starts its idle-heartbeat ticker.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	sub := &subscriber{ch: make(chan model.ProgressEvent, DefaultBufferSize)}

	b.mu.Lock()
	b.topics[sessionID] = append(b.topics[sessionID], sub)
	metrics.ProgressSubscribers.Inc()
	b.mu.Unlock()

	s := &Subscription{Events: sub.ch, bus: b, sessionID: sessionID, sub: sub, stopHB: make(chan struct{})}
	go b.heartbeatLoop(sessionID, sub, s.stopHB)
	return s
}

func (b *Bus) heartbeatLoop(sessionID string, sub *subscriber, stop chan struct{}) {
	ticker := time.NewTicker(IdleHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			event := model.ProgressEvent{SessionID: sessionID, Kind: model.EventHeartbeat}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&sub.dropped, 1)
				metrics.ProgressDropped.Inc()
			}
		}
	}
}

func (b *Bus) remove(sessionID string, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sessionID]
	for i, s := range subs {
		if s == target {
			b.topics[sessionID] = append(subs[:i], subs[i+1:]...)
			metrics.ProgressSubscribers.Dec()
			break
		}
	}
	if len(b.topics[sessionID]) == 0 {
		delete(b.topics, sessionID)
	}
}

// Publish fans event out to every subscriber on its session_id topic and
// every wildcard subscriber, dropping (not blocking) on a full buffer.
func (b *Bus) Publish(event model.ProgressEvent) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.topics[event.SessionID])+len(b.topics[Wildcard]))
	subs = append(subs, b.topics[event.SessionID]...)
	subs = append(subs, b.topics[Wildcard]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			atomic.AddInt64(&sub.dropped, 1)
			metrics.ProgressDropped.Inc()
			b.logger.Warn("dropped progress event", zap.String("session_id", event.SessionID), zap.String("kind", string(event.Kind)))
		}
	}
}

// SubscriberCount reports the current number of live subscribers across
// all topics, for the metrics gauge.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.topics {
		n += len(subs)
	}
	return n
}
