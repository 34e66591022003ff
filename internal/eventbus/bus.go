// Package eventbus is the in-process fanout channel between the item
// registry, the rule engine, and anything observing them. It trades delivery
// guarantees for the promise that a publisher never blocks: a subscriber that
// falls behind loses events instead of stalling a trigger fire.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the engine and the item registry.
const (
	TypeItemChanged   = "item.changed"
	TypeTriggerFired  = "trigger.fired"
	TypeRuleFired     = "rule.fired"
	TypeRuleSkipped   = "rule.skipped"
	TypeRuleRunFailed = "rule.run_failed"
)

// Event is one signal on the bus. Publish stamps Time when it is zero.
// Data should stay small; for item changes it is an items.Change, for rule
// events the rule id.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish never blocks. Subscribers whose buffer is full miss the event.
	Publish(e Event)
	// Subscribe returns a buffered event channel and an idempotent
	// unsubscribe func that closes it.
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory Bus with no background goroutines.
func New() Bus {
	return &fanout{sinks: map[uint64]chan Event{}}
}

type fanout struct {
	mu    sync.RWMutex
	sinks map[uint64]chan Event
	next  atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Snapshot under the read lock; the sends happen lock-free so a slow
	// subscriber cannot hold up Subscribe/unsubscribe.
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.sinks))
	for _, ch := range b.sinks {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		b.send(ch, e)
	}
}

// send delivers best-effort. A concurrent unsubscribe may close the channel
// between snapshot and send, so the panic is absorbed here.
func (b *fanout) send(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.next.Add(1)

	b.mu.Lock()
	b.sinks[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.sinks, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
