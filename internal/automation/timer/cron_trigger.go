package timer

import (
	"sync"
	"time"

	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
	logx "ruletimer/pkg/logx"
)

// cronTrigger fires on a recurring cron expression.
type cronTrigger struct {
	log  logx.Logger
	fire FireFunc

	// mu serializes onFire against Dispose: once Dispose returns, no further
	// fire side effects are observable.
	mu       sync.Mutex
	disposed bool
	sched    *schedule.Schedule
}

func newCronTrigger(f *Factory, m rule.Module, ruleID string, fire FireFunc) (Handler, error) {
	expr := m.Config.String(KeyCronExpression)
	if expr == "" {
		return nil, invalidConfig(TypeCronTrigger, KeyCronExpression, "required")
	}
	if fire == nil {
		return nil, invalidConfig(TypeCronTrigger, "callback", "required")
	}

	t := &cronTrigger{
		log:  f.log.With(logx.String("rule", ruleID), logx.String("type", TypeCronTrigger)),
		fire: fire,
	}
	h, err := f.scheduler.Cron(scheduleName(ruleID, m), expr, t.onFire)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeCronTrigger, Key: KeyCronExpression, Err: err}
	}
	t.sched = h
	return t, nil
}

func (t *cronTrigger) onFire(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.fire(at, Output{OutputFiredTime: at})
}

func (t *cronTrigger) Dispose() {
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
	t.log.Debug("cron trigger disposed")
}
