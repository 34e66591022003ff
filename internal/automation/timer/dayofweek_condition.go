package timer

import (
	"strings"
	"time"

	"ruletimer/internal/rule"
)

var weekdayTokens = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// dayOfWeekCondition passes on the configured weekdays.
type dayOfWeekCondition struct {
	days map[time.Weekday]bool
}

func newDayOfWeekCondition(f *Factory, m rule.Module, ruleID string) (Handler, error) {
	_ = f
	_ = ruleID
	tokens := m.Config.StringSlice(KeyDays)
	if len(tokens) == 0 {
		return nil, invalidConfig(TypeDayOfWeekCondition, KeyDays, "required")
	}
	days := make(map[time.Weekday]bool, len(tokens))
	for _, tok := range tokens {
		wd, ok := weekdayTokens[strings.ToUpper(strings.TrimSpace(tok))]
		if !ok {
			return nil, invalidConfig(TypeDayOfWeekCondition, KeyDays, "unknown day %q (use MON..SUN)", tok)
		}
		days[wd] = true
	}
	return &dayOfWeekCondition{days: days}, nil
}

func (c *dayOfWeekCondition) Evaluate(now time.Time) bool {
	return c.days[now.Weekday()]
}

func (c *dayOfWeekCondition) Dispose() {}
