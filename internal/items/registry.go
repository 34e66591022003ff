// Package items holds the in-memory item registry: the latest string state
// per named item, with change fanout for subscribers (e.g. the date-time
// trigger) and best-effort persistence through internal/storage.
package items

import (
	"context"
	"strings"
	"sync"
	"time"

	"ruletimer/internal/eventbus"
	"ruletimer/internal/storage"
	logx "ruletimer/pkg/logx"
)

// Change describes one item state transition.
type Change struct {
	Item     string
	Previous string
	Value    string
	At       time.Time
}

type Registry struct {
	mu     sync.RWMutex
	states map[string]string

	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger
}

func NewRegistry(bus eventbus.Bus, store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		states: map[string]string{},
		bus:    bus,
		store:  store,
		log:    log,
	}
}

// Load restores persisted states. Call once at startup, before SetState
// traffic begins.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.ListStates(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, rec := range recs {
		r.states[rec.Item] = rec.Value
	}
	n := len(r.states)
	r.mu.Unlock()
	r.log.Debug("item states restored", logx.Int("count", n))
	return nil
}

// State returns the current value of the named item.
func (r *Registry) State(name string) (string, bool) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	v, ok := r.states[name]
	r.mu.RUnlock()
	return v, ok
}

// Items returns the names of all known items.
func (r *Registry) Items() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.states))
	for name := range r.states {
		out = append(out, name)
	}
	r.mu.RUnlock()
	return out
}

// SetState updates an item and notifies subscribers. An unchanged value is
// still persisted (refreshes updated_at) but produces no change event.
func (r *Registry) SetState(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	at := time.Now()

	r.mu.Lock()
	prev, had := r.states[name]
	r.states[name] = value
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.PutState(ctx, name, value, at); err != nil {
			// Persistence is best effort; the in-memory state is authoritative.
			r.log.Warn("item state persist failed", logx.String("item", name), logx.Any("err", err))
		}
	}

	if had && prev == value {
		return nil
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TypeItemChanged,
			Time: at,
			Data: Change{Item: name, Previous: prev, Value: value, At: at},
		})
	}
	return nil
}

// Subscribe returns a channel of item changes and an unsubscribe func.
// Delivery is non-blocking; slow consumers may miss intermediate changes.
func (r *Registry) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	events, unsub := r.bus.Subscribe(buffer)
	out := make(chan Change, buffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				ch, isChange := e.Data.(Change)
				if e.Type != eventbus.TypeItemChanged || !isChange {
					continue
				}
				select {
				case out <- ch:
				default:
					// drop for slow consumer
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			unsub()
		})
	}
}
