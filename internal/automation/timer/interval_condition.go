package timer

import (
	"sync"
	"time"

	"ruletimer/internal/rule"
)

// intervalCondition passes when at least minInterval has elapsed since its
// own last passing evaluation. The last-pass timestamp moves only on a true
// result, so two back-to-back evaluations yield true then false.
type intervalCondition struct {
	min time.Duration

	mu       sync.Mutex
	lastPass time.Time
}

func newIntervalCondition(f *Factory, m rule.Module, ruleID string) (Handler, error) {
	_ = f
	_ = ruleID
	min, ok, err := m.Config.Seconds(KeyMinInterval)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeIntervalCondition, Key: KeyMinInterval, Err: err}
	}
	if !ok {
		return nil, invalidConfig(TypeIntervalCondition, KeyMinInterval, "required")
	}
	if min <= 0 {
		return nil, invalidConfig(TypeIntervalCondition, KeyMinInterval, "must be > 0")
	}
	return &intervalCondition{min: min}, nil
}

func (c *intervalCondition) Evaluate(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastPass.IsZero() && now.Sub(c.lastPass) < c.min {
		return false
	}
	c.lastPass = now
	return true
}

func (c *intervalCondition) Dispose() {}
