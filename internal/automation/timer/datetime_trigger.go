package timer

import (
	"fmt"
	"sync"
	"time"

	"ruletimer/internal/items"
	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
	logx "ruletimer/pkg/logx"
)

// dateTimeTrigger fires at a time read from an item's current value. Every
// change of that value supersedes the previous schedule.
//
// Past-time policy: a computed fire time that already lies in the past fires
// immediately (the scheduler clamps the delay to zero). Silently skipping
// would lose triggers whenever an item is set slightly late.
type dateTimeTrigger struct {
	log       logx.Logger
	fire      FireFunc
	scheduler *schedule.Service
	items     *items.Registry

	itemName  string
	timeOnly  bool
	offset    time.Duration
	schedName string

	// mu serializes reschedule, fire, and dispose; "current schedule handle"
	// is only ever touched with mu held.
	mu       sync.Mutex
	disposed bool
	sched    *schedule.Schedule

	unsub func()
}

func newDateTimeTrigger(f *Factory, m rule.Module, ruleID string, fire FireFunc) (Handler, error) {
	itemName := m.Config.String(KeyItemName)
	if itemName == "" {
		return nil, invalidConfig(TypeDateTimeTrigger, KeyItemName, "required")
	}
	if fire == nil {
		return nil, invalidConfig(TypeDateTimeTrigger, "callback", "required")
	}
	offset, _, err := m.Config.Seconds(KeyOffset)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeDateTimeTrigger, Key: KeyOffset, Err: err}
	}

	t := &dateTimeTrigger{
		log: f.log.With(
			logx.String("rule", ruleID),
			logx.String("type", TypeDateTimeTrigger),
			logx.String("item", itemName),
		),
		fire:      fire,
		scheduler: f.scheduler,
		items:     f.items,
		itemName:  itemName,
		timeOnly:  m.Config.Bool(KeyTimeOnly, false),
		offset:    offset,
		schedName: scheduleName(ruleID, m),
	}

	changes, unsub := f.items.Subscribe(16)
	t.unsub = unsub
	go t.watch(changes)

	t.reschedule()
	return t, nil
}

func (t *dateTimeTrigger) watch(changes <-chan items.Change) {
	for ch := range changes {
		if ch.Item != t.itemName {
			continue
		}
		t.reschedule()
	}
}

func (t *dateTimeTrigger) reschedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rescheduleLocked()
}

// rescheduleLocked cancels the current schedule and registers a new one-shot
// for the item's current value. Call with mu held.
func (t *dateTimeTrigger) rescheduleLocked() {
	if t.disposed {
		return
	}
	if t.sched != nil {
		t.sched.Cancel()
		t.sched = nil
	}

	raw, ok := t.items.State(t.itemName)
	if !ok || raw == "" {
		t.log.Debug("item has no value; trigger unscheduled")
		return
	}
	at, err := t.computeFireTime(raw)
	if err != nil {
		// Stay unscheduled; the next value change drives the next attempt.
		t.log.Warn("item value not a date-time; trigger unscheduled", logx.Any("err", err))
		return
	}

	h, err := t.scheduler.At(t.schedName, at, t.onFire)
	if err != nil {
		t.log.Error("schedule failed", logx.Any("err", err))
		return
	}
	t.sched = h
	t.log.Debug("trigger scheduled", logx.Time("at", at))
}

func (t *dateTimeTrigger) computeFireTime(raw string) (time.Time, error) {
	loc := t.scheduler.Location()
	now := time.Now().In(loc)

	if t.timeOnly {
		// Accept bare times and full date-times; only the wall-clock part is kept.
		tod, err := schedule.ParseTimeOfDay(raw)
		if err != nil {
			full, ferr := parseDateTime(raw, loc)
			if ferr != nil {
				return time.Time{}, err
			}
			tod = schedule.TimeOfDay{Hour: full.Hour(), Minute: full.Minute(), Second: full.Second()}
		}
		at := tod.On(now).Add(t.offset)
		if !at.After(now) {
			at = at.Add(24 * time.Hour)
		}
		return at, nil
	}

	at, err := parseDateTime(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(t.offset), nil
}

func (t *dateTimeTrigger) onFire(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.sched = nil
	t.fire(at, Output{OutputFiredTime: at})
	if t.timeOnly {
		// Daily semantics: line up the next occurrence right away.
		t.rescheduleLocked()
	}
}

func (t *dateTimeTrigger) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	if t.sched != nil {
		t.sched.Cancel()
		t.sched = nil
	}
	t.mu.Unlock()

	if t.unsub != nil {
		t.unsub()
	}
	t.log.Debug("date-time trigger disposed")
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if layout == time.RFC3339 {
			if at, err := time.Parse(layout, raw); err == nil {
				return at.In(loc), nil
			}
			continue
		}
		if at, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date-time %q", raw)
}
