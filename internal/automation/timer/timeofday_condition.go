package timer

import (
	"time"

	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
)

// timeOfDayCondition passes while the wall-clock time is inside
// [startTime, endTime). A window with endTime < startTime spans midnight.
type timeOfDayCondition struct {
	start int // seconds from midnight
	end   int
}

func newTimeOfDayCondition(f *Factory, m rule.Module, ruleID string) (Handler, error) {
	_ = f
	_ = ruleID
	rawStart := m.Config.String(KeyStartTime)
	if rawStart == "" {
		return nil, invalidConfig(TypeTimeOfDayCondition, KeyStartTime, "required")
	}
	rawEnd := m.Config.String(KeyEndTime)
	if rawEnd == "" {
		return nil, invalidConfig(TypeTimeOfDayCondition, KeyEndTime, "required")
	}
	start, err := schedule.ParseTimeOfDay(rawStart)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeTimeOfDayCondition, Key: KeyStartTime, Err: err}
	}
	end, err := schedule.ParseTimeOfDay(rawEnd)
	if err != nil {
		return nil, &InvalidConfigError{ModuleType: TypeTimeOfDayCondition, Key: KeyEndTime, Err: err}
	}
	return &timeOfDayCondition{start: start.SecondOfDay(), end: end.SecondOfDay()}, nil
}

func (c *timeOfDayCondition) Evaluate(now time.Time) bool {
	s := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if c.start == c.end {
		// [x, x) is empty.
		return false
	}
	if c.start < c.end {
		return s >= c.start && s < c.end
	}
	// Window wraps midnight.
	return s >= c.start || s < c.end
}

func (c *timeOfDayCondition) Dispose() {}
