// Package events collects access decisions and operator notices. The display
// side drains them with Poll; decisions are also fanned out to the audit
// log, the message bus and live subscribers.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
)

// Recorder persists decision events
type Recorder interface {
	RecordEvent(ctx context.Context, ev models.DetectionEvent) error
}

type Options struct {
	Capacity     int    // poll log entries kept before the oldest is dropped
	Subject      string // message bus subject for decisions
	DispatchSize int
}

type Stats struct {
	Emitted        int64 `json:"emitted"`
	LogDropped     int64 `json:"log_dropped"`
	DispatchDrops  int64 `json:"dispatch_dropped"`
	RecordFailures int64 `json:"record_failures"`
	PublishErrors  int64 `json:"publish_errors"`
	Subscribers    int   `json:"subscribers"`
}

type Hub struct {
	opts      Options
	recorder  Recorder
	publisher models.MessagePublisher
	logger    zerolog.Logger

	mu  sync.Mutex
	log []models.LogEntry

	// subMu also guards closing dispatch
	subMu  sync.RWMutex
	subs   map[uint64]chan models.DetectionEvent
	nextID uint64
	closed bool

	dispatch chan models.DetectionEvent
	done     chan struct{}
	stopOnce sync.Once

	emitted        atomic.Int64
	logDropped     atomic.Int64
	dispatchDrops  atomic.Int64
	recordFailures atomic.Int64
	publishErrors  atomic.Int64

	now func() time.Time
}

// NewHub creates a hub. recorder and publisher may be nil.
func NewHub(opts Options, recorder Recorder, publisher models.MessagePublisher, logger zerolog.Logger) *Hub {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.DispatchSize <= 0 {
		opts.DispatchSize = 1024
	}
	h := &Hub{
		opts:      opts,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With().Str("component", "events").Logger(),
		subs:      make(map[uint64]chan models.DetectionEvent),
		dispatch:  make(chan models.DetectionEvent, opts.DispatchSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	go h.dispatcher()
	return h
}

// Emit records a decision. It never blocks the caller.
func (h *Hub) Emit(ev models.DetectionEvent) {
	h.emitted.Add(1)
	h.append(models.LogEntry{
		Timestamp: ev.Timestamp,
		StreamID:  ev.StreamID,
		Message:   ev.Message,
		Decision:  ev.Decision,
	})

	h.logger.Info().
		Str("event_id", ev.ID).
		Str("stream_id", ev.StreamID).
		Str("location", ev.Location).
		Str("identity", ev.DisplayName).
		Str("decision", string(ev.Decision)).
		Str("reason", ev.Reason).
		Msg(ev.Message)

	h.subMu.RLock()
	defer h.subMu.RUnlock()
	if h.closed {
		return
	}

	select {
	case h.dispatch <- ev:
	default:
		h.dispatchDrops.Add(1)
		h.logger.Warn().Str("event_id", ev.ID).Msg("Event dispatch queue full, skipping audit and publish")
	}

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify appends an operational message with no decision
func (h *Hub) Notify(streamID, message string) {
	h.append(models.LogEntry{Timestamp: h.now(), StreamID: streamID, Message: message})
}

func (h *Hub) append(e models.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.log) >= h.opts.Capacity {
		drop := len(h.log) - h.opts.Capacity + 1
		h.log = append(h.log[:0], h.log[drop:]...)
		h.logDropped.Add(int64(drop))
	}
	h.log = append(h.log, e)
}

// Poll drains the log in emission order. It never blocks on emitters for
// longer than a slice swap.
func (h *Hub) Poll() []models.LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.log
	h.log = nil
	return out
}

// Subscribe returns a live feed of decisions. Slow subscribers miss events.
func (h *Hub) Subscribe(buffer int) (<-chan models.DetectionEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.DetectionEvent, buffer)

	h.subMu.Lock()
	if h.closed {
		h.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.subMu.Unlock()

	return ch, func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.subMu.RLock()
	subs := len(h.subs)
	h.subMu.RUnlock()
	return Stats{
		Emitted:        h.emitted.Load(),
		LogDropped:     h.logDropped.Load(),
		DispatchDrops:  h.dispatchDrops.Load(),
		RecordFailures: h.recordFailures.Load(),
		PublishErrors:  h.publishErrors.Load(),
		Subscribers:    subs,
	}
}

func (h *Hub) dispatcher() {
	defer close(h.done)
	for ev := range h.dispatch {
		h.deliver(ev)
	}
}

func (h *Hub) deliver(ev models.DetectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("event_id", ev.ID).Msg("Event dispatch panic recovered")
		}
	}()

	if h.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := h.recorder.RecordEvent(ctx, ev)
		cancel()
		if err != nil {
			h.recordFailures.Add(1)
			h.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to record access event")
		}
	}

	if h.publisher != nil && h.opts.Subject != "" {
		if err := h.publisher.Publish(h.opts.Subject, ev); err != nil {
			h.publishErrors.Add(1)
			h.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to publish access event")
		}
	}
}

// Close stops the dispatcher after delivering what is queued, waiting at
// most timeout. Later emits still reach the poll log only.
func (h *Hub) Close(timeout time.Duration) {
	h.stopOnce.Do(func() {
		h.subMu.Lock()
		h.closed = true
		close(h.dispatch)
		for id, ch := range h.subs {
			delete(h.subs, id)
			close(ch)
		}
		h.subMu.Unlock()

		select {
		case <-h.done:
		case <-time.After(timeout):
			h.logger.Warn().Msg("Event dispatcher did not finish in time")
		}
	})
}
