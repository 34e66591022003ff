package timer

import (
	"sort"
	"sync"

	"ruletimer/internal/items"
	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
	logx "ruletimer/pkg/logx"
)

type constructor func(f *Factory, m rule.Module, ruleID string, fire FireFunc) (Handler, error)

// Factory builds timer handlers for the rule engine.
//
// The type-to-constructor table is built once at construction and never
// mutated afterwards; only the set of live handlers changes at runtime.
type Factory struct {
	log       logx.Logger
	scheduler *schedule.Service
	items     *items.Registry

	ctors map[string]constructor

	mu   sync.Mutex
	live map[string][]Handler // rule id -> handlers
}

func NewFactory(scheduler *schedule.Service, reg *items.Registry, log logx.Logger) *Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	f := &Factory{
		log:       log,
		scheduler: scheduler,
		items:     reg,
		live:      map[string][]Handler{},
	}
	f.ctors = map[string]constructor{
		TypeCronTrigger:        newCronTrigger,
		TypeTimeOfDayTrigger:   newTimeOfDayTrigger,
		TypeDateTimeTrigger:    newDateTimeTrigger,
		TypeTimeOfDayCondition: wrapCondition(newTimeOfDayCondition),
		TypeDayOfWeekCondition: wrapCondition(newDayOfWeekCondition),
		TypeIntervalCondition:  wrapCondition(newIntervalCondition),
	}
	return f
}

// wrapCondition adapts a condition constructor (which has no fire callback)
// to the common constructor shape.
func wrapCondition(ctor func(f *Factory, m rule.Module, ruleID string) (Handler, error)) constructor {
	return func(f *Factory, m rule.Module, ruleID string, _ FireFunc) (Handler, error) {
		return ctor(f, m, ruleID)
	}
}

// Types returns the module-type identifiers this factory supports, sorted.
func (f *Factory) Types() []string {
	out := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether the factory can build handlers for the given
// module-type identifier.
func (f *Factory) Supports(moduleType string) bool {
	_, ok := f.ctors[moduleType]
	return ok
}

// Create builds the handler for the given module and registers it under the
// owning rule. It returns nil for an unsupported module type or a malformed
// configuration; both are logged here, at the subsystem boundary. Callers are
// expected to have filtered by Types() already, so an unsupported type
// reaching Create is itself a configuration bug.
//
// fire may be nil for condition modules.
func (f *Factory) Create(m rule.Module, ruleID string, fire FireFunc) Handler {
	f.log.Trace("create handler", logx.String("rule", ruleID), logx.String("type", m.Type))
	ctor, ok := f.ctors[m.Type]
	if !ok {
		f.log.Error("module type not supported", logx.String("rule", ruleID), logx.String("type", m.Type))
		return nil
	}
	h, err := ctor(f, m, ruleID, fire)
	if err != nil {
		f.log.Error("handler construction failed",
			logx.String("rule", ruleID), logx.String("type", m.Type), logx.Err(err))
		return nil
	}

	f.mu.Lock()
	f.live[ruleID] = append(f.live[ruleID], h)
	f.mu.Unlock()
	return h
}

// Dispose tears down every handler owned by the given rule. Unknown or
// already-disposed rule ids are a no-op.
func (f *Factory) Dispose(ruleID string) {
	f.mu.Lock()
	handlers := f.live[ruleID]
	delete(f.live, ruleID)
	f.mu.Unlock()

	for _, h := range handlers {
		h.Dispose()
	}
	if len(handlers) > 0 {
		f.log.Debug("handlers disposed", logx.String("rule", ruleID), logx.Int("count", len(handlers)))
	}
}

// DisposeAll tears down every live handler across all rules. Safe to call
// repeatedly.
func (f *Factory) DisposeAll() {
	f.mu.Lock()
	live := f.live
	f.live = map[string][]Handler{}
	f.mu.Unlock()

	n := 0
	for _, handlers := range live {
		for _, h := range handlers {
			h.Dispose()
			n++
		}
	}
	if n > 0 {
		f.log.Debug("all handlers disposed", logx.Int("count", n))
	}
}

// liveCount reports the number of live handlers for the rule (tests).
func (f *Factory) liveCount(ruleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live[ruleID])
}

// scheduleName builds a stable scheduler name for a rule's module.
func scheduleName(ruleID string, m rule.Module) string {
	id := m.ID
	if id == "" {
		id = m.Type
	}
	return ruleID + "/" + id
}
