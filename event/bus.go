// Package event provides the in-process progress bus. The engine publishes
// an event at every state change, gate verdict, fix, and run outcome;
// dashboards and tests subscribe. Events are notifications, not durable
// coordination: a slow subscriber drops events rather than stalling a run.
package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftgate/draftgate/id"
)

// Kind names an event type.
type Kind string

const (
	// KindStateChanged fires on every pipeline state transition.
	KindStateChanged Kind = "job.state_changed"
	// KindGateEvaluated fires after each quality-gate evaluation.
	KindGateEvaluated Kind = "job.gate_evaluated"
	// KindFixApplied fires once per applied auto-fix.
	KindFixApplied Kind = "job.fix_applied"
	// KindRunFinished fires exactly once per run with the final outcome.
	KindRunFinished Kind = "run.finished"
)

// Event is one progress notification.
type Event struct {
	ID        id.EventID   `json:"id"`
	Kind      Kind         `json:"kind"`
	RequestID id.RequestID `json:"request_id,omitempty"`
	JobID     id.JobID     `json:"job_id,omitempty"`
	// State carries the new pipeline state for KindStateChanged.
	State string `json:"state,omitempty"`
	// Status carries the gate status for KindGateEvaluated.
	Status string `json:"status,omitempty"`
	// Outcome carries the run outcome for KindRunFinished.
	Outcome   string    `json:"outcome,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// subscriber is one registered channel and its kind filter.
type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextSub int
	closed  bool
	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a channel receiving events of the given kinds, or all
// kinds when none are named. The returned cancel func releases the channel;
// call it exactly once.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	key := b.nextSub
	b.nextSub++
	if !b.closed {
		b.subs[key] = sub
	} else {
		close(sub.ch)
	}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		if s, ok := b.subs[key]; ok {
			delete(b.subs, key)
			close(s.ch)
		}
		b.mu.Unlock()
	}
}

// Publish stamps the event with an ID and timestamp and delivers it to every
// matching subscriber. Full subscriber buffers drop the event.
func (b *Bus) Publish(e Event) {
	e.ID = id.NewEventID()
	e.CreatedAt = time.Now().UTC()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[e.Kind] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events discarded on full buffers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, sub := range b.subs {
		delete(b.subs, key)
		close(sub.ch)
	}
}
