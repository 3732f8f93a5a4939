package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
)

// Bus owns one stream per session. The strategy goroutine is the single
// producer of a stream; any number of subscribers consume it. Publishing
// never blocks on a slow subscriber; overflowing queues drop their
// subscriber instead (spec: bounded buffering of stragglers).
type Bus struct {
	mu      sync.RWMutex
	streams map[string]*stream

	// bufferSize is the per-subscriber queue depth for live events.
	bufferSize int
	metrics    *metrics.Metrics
}

// stream is the append-only event log plus attached subscribers for one
// session.
type stream struct {
	sessionID string

	mu     sync.Mutex
	log    [][]byte
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one consumer's view of a session stream. Events() yields
// the full log from session start followed by live events, in emission
// order; the channel closes after the terminal event (or on Close/drop).
type Subscription struct {
	ch     chan []byte
	stream *stream
	once   sync.Once
}

// Events returns the ordered event channel.
func (s *Subscription) Events() <-chan []byte {
	return s.ch
}

// Close detaches the subscription. Safe to call multiple times and safe
// concurrently with publishing; buffered events remain readable.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stream == nil {
			return
		}
		s.stream.mu.Lock()
		if _, ok := s.stream.subs[s]; ok {
			delete(s.stream.subs, s)
			close(s.ch)
		}
		s.stream.mu.Unlock()
	})
}

// NewBus creates a bus with the given per-subscriber queue depth.
func NewBus(bufferSize int, m *metrics.Metrics) *Bus {
	return &Bus{
		streams:    make(map[string]*stream),
		bufferSize: bufferSize,
		metrics:    m,
	}
}

// Register creates the stream for a session. Must happen before the
// strategy goroutine starts so pre-subscriber events are retained.
func (b *Bus) Register(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.streams[sessionID]; exists {
		return
	}
	b.streams[sessionID] = &stream{
		sessionID: sessionID,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Publish appends an event to the session log and fans it out. A terminal
// event type closes the stream: all subscriber channels close after
// receiving it, and later publishes are rejected with INVALID_STATE.
func (b *Bus) Publish(sessionID, eventType string, data []byte) error {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if !ok {
		return models.NewError(models.KindUnknownSession, "no event stream for session %s", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return models.NewError(models.KindInvalidState, "event stream for session %s is closed", sessionID)
	}

	st.log = append(st.log, data)
	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}

	for sub := range st.subs {
		// The queue was sized at subscribe time for the replayed backlog
		// plus bufferSize live events, with one slot reserved for the
		// lagged signal. A subscriber is dropped only when that headroom
		// is gone; an undrained backlog alone never counts as lag.
		if len(sub.ch) >= cap(sub.ch)-1 {
			slog.Warn("Dropping lagged event subscriber",
				"session_id", sessionID, "queued", len(sub.ch))
			sub.ch <- b.laggedSignal(sessionID)
			delete(st.subs, sub)
			close(sub.ch)
			if b.metrics != nil {
				b.metrics.EventsDropped.Inc()
			}
			continue
		}
		sub.ch <- data
	}

	if IsTerminal(eventType) {
		st.closed = true
		for sub := range st.subs {
			delete(st.subs, sub)
			close(sub.ch)
		}
	}
	return nil
}

// Subscribe attaches a consumer to a session stream. The full backlog is
// replayed into the subscription before any live event; a subscriber of an
// already-terminal stream replays everything and then sees the channel
// close.
func (b *Bus) Subscribe(sessionID string) (*Subscription, error) {
	b.mu.RLock()
	st, ok := b.streams[sessionID]
	b.mu.RUnlock()
	if !ok {
		return nil, models.NewError(models.KindUnknownSession, "no event stream for session %s", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Capacity covers the replayed backlog plus the live queue plus the
	// reserved lagged-signal slot, so replay itself can never overflow.
	sub := &Subscription{
		ch:     make(chan []byte, len(st.log)+b.bufferSize+1),
		stream: st,
	}
	for _, data := range st.log {
		sub.ch <- data
	}

	if st.closed {
		close(sub.ch)
		sub.stream = nil
		return sub, nil
	}

	st.subs[sub] = struct{}{}
	return sub, nil
}

// Drop discards a session stream after retention expires. Any remaining
// subscribers are closed.
func (b *Bus) Drop(sessionID string) {
	b.mu.Lock()
	st, ok := b.streams[sessionID]
	delete(b.streams, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	for sub := range st.subs {
		delete(st.subs, sub)
		close(sub.ch)
	}
	st.closed = true
	st.mu.Unlock()
}

// Has reports whether a stream exists for the session.
func (b *Bus) Has(sessionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.streams[sessionID]
	return ok
}

// laggedSignal builds the subscriber_lagged envelope for a dropped consumer.
func (b *Bus) laggedSignal(sessionID string) []byte {
	data, err := json.Marshal(SubscriberLaggedPayload{
		Envelope: Envelope{
			Type:      EventTypeSubscriberLagged,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			SessionID: sessionID,
		},
		Dropped: 1,
	})
	if err != nil {
		// Marshal of a fixed struct cannot fail; keep the stream moving.
		return []byte(`{"type":"subscriber_lagged"}`)
	}
	return data
}
