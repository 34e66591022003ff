package timer

import (
	"fmt"
	"time"
)

// Module-type identifiers advertised by the factory.
const (
	TypeCronTrigger        = "timer.CronTrigger"
	TypeTimeOfDayTrigger   = "timer.TimeOfDayTrigger"
	TypeDateTimeTrigger    = "timer.DateTimeTrigger"
	TypeTimeOfDayCondition = "timer.TimeOfDayCondition"
	TypeDayOfWeekCondition = "timer.DayOfWeekCondition"
	TypeIntervalCondition  = "timer.IntervalCondition"
)

// Configuration keys understood by the handlers.
const (
	KeyCronExpression = "cronExpression"
	KeyTime           = "time"
	KeyItemName       = "itemName"
	KeyTimeOnly       = "timeOnly"
	KeyOffset         = "offset"
	KeyStartTime      = "startTime"
	KeyEndTime        = "endTime"
	KeyDays           = "days"
	KeyMinInterval    = "minInterval"
)

// OutputFiredTime is the output key carrying a trigger's fire timestamp.
const OutputFiredTime = "firedTime"

// Output is the data a firing trigger hands to the rule engine.
type Output map[string]any

// FireFunc is the event-emission callback the rule engine supplies when it
// asks the factory for a trigger handler.
type FireFunc func(at time.Time, out Output)

// Handler is the common lifecycle surface of every module handler.
// Dispose cancels any schedules the handler owns; it is idempotent, and once
// it returns the handler produces no further observable side effects.
type Handler interface {
	Dispose()
}

// TriggerHandler is a Handler that fires on its own via the scheduler.
type TriggerHandler interface {
	Handler
}

// ConditionHandler gates rule execution. Evaluate must return quickly; it
// runs inline on the engine's execution path.
type ConditionHandler interface {
	Handler
	Evaluate(now time.Time) bool
}

// InvalidConfigError marks a module configuration problem detected at handler
// construction time, before anything was scheduled.
type InvalidConfigError struct {
	ModuleType string
	Key        string
	Err        error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("%s: invalid %q: %v", e.ModuleType, e.Key, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

func invalidConfig(moduleType, key, format string, args ...any) *InvalidConfigError {
	return &InvalidConfigError{ModuleType: moduleType, Key: key, Err: fmt.Errorf(format, args...)}
}
