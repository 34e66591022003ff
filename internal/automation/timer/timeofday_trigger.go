package timer

import (
	"sync"
	"time"

	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
	logx "ruletimer/pkg/logx"
)

// timeOfDayTrigger fires once a day at a fixed wall-clock time.
type timeOfDayTrigger struct {
	log  logx.Logger
	fire FireFunc

	// mu serializes onFire against Dispose, like cronTrigger.
	mu       sync.Mutex
	disposed bool
	sched    *schedule.Schedule
}

func newTimeOfDayTrigger(f *Factory, m rule.Module, ruleID string, fire FireFunc) (Handler, error) {
	raw := m.Config.String(KeyTime)
	if raw == "" {
		return nil, invalidConfig(TypeTimeOfDayTrigger, KeyTime, "required")
	}
	tod, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeTimeOfDayTrigger, Key: KeyTime, Err: err}
	}
	if fire == nil {
		return nil, invalidConfig(TypeTimeOfDayTrigger, "callback", "required")
	}

	t := &timeOfDayTrigger{
		log:  f.log.With(logx.String("rule", ruleID), logx.String("type", TypeTimeOfDayTrigger)),
		fire: fire,
	}
	h, err := f.scheduler.Daily(scheduleName(ruleID, m), tod, t.onFire)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeTimeOfDayTrigger, Key: KeyTime, Err: err}
	}
	t.sched = h
	return t, nil
}

func (t *timeOfDayTrigger) onFire(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.fire(at, Output{OutputFiredTime: at})
}

func (t *timeOfDayTrigger) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	sched := t.sched
	t.sched = nil
	t.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
	t.log.Debug("time-of-day trigger disposed")
}
