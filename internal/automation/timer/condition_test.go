package timer

import (
	"testing"
	"time"

	"ruletimer/internal/rule"
)

func condModule(typ string, cfg rule.Config) rule.Module {
	return rule.Module{ID: "cond", Type: typ, Config: cfg}
}

func mustCondition(t *testing.T, f *Factory, m rule.Module) ConditionHandler {
	t.Helper()
	h := f.Create(m, "r1", nil)
	if h == nil {
		t.Fatalf("Create(%s) returned nil", m.Type)
	}
	c, ok := h.(ConditionHandler)
	if !ok {
		t.Fatalf("%s handler is not a condition", m.Type)
	}
	return c
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.June, 1, hour, min, 0, 0, time.UTC) // a Monday
}

func TestTimeOfDayConditionPlainWindow(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeTimeOfDayCondition, rule.Config{
		"startTime": "08:00",
		"endTime":   "17:00",
	}))

	tests := []struct {
		hour, min int
		want      bool
	}{
		{7, 59, false},
		{8, 0, true},
		{12, 0, true},
		{16, 59, true},
		{17, 0, false}, // end is exclusive
		{23, 0, false},
	}
	for _, tt := range tests {
		if got := c.Evaluate(at(tt.hour, tt.min)); got != tt.want {
			t.Fatalf("Evaluate(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
		}
	}
}

func TestTimeOfDayConditionWrapsMidnight(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeTimeOfDayCondition, rule.Config{
		"startTime": "22:00",
		"endTime":   "06:00",
	}))

	tests := []struct {
		hour, min int
		want      bool
	}{
		{23, 0, true},
		{5, 0, true},
		{12, 0, false},
		{22, 0, true},
		{6, 0, false}, // end is exclusive
		{21, 59, false},
	}
	for _, tt := range tests {
		if got := c.Evaluate(at(tt.hour, tt.min)); got != tt.want {
			t.Fatalf("Evaluate(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
		}
	}
}

func TestTimeOfDayConditionEmptyWindow(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeTimeOfDayCondition, rule.Config{
		"startTime": "10:00",
		"endTime":   "10:00",
	}))
	if c.Evaluate(at(10, 0)) {
		t.Fatal("empty window [x, x) should never pass")
	}
}

func TestTimeOfDayConditionInvalidConfig(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	for _, cfg := range []rule.Config{
		{},
		{"startTime": "08:00"},
		{"startTime": "nope", "endTime": "10:00"},
		{"startTime": "08:00", "endTime": "25:00"},
	} {
		if h := f.Create(condModule(TypeTimeOfDayCondition, cfg), "r1", nil); h != nil {
			t.Fatalf("expected nil handler for config %v", cfg)
		}
	}
}

func TestDayOfWeekCondition(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeDayOfWeekCondition, rule.Config{
		"days": []any{"MON", "wed", "Fri"},
	}))

	monday := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	for i, want := range []bool{true, false, true, false, true, false, false} {
		day := monday.AddDate(0, 0, i)
		if got := c.Evaluate(day); got != want {
			t.Fatalf("Evaluate(%s) = %v, want %v", day.Weekday(), got, want)
		}
	}
}

func TestDayOfWeekConditionInvalidConfig(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	for _, cfg := range []rule.Config{
		{},
		{"days": []any{}},
		{"days": []any{"MON", "FUNDAY"}},
	} {
		if h := f.Create(condModule(TypeDayOfWeekCondition, cfg), "r1", nil); h != nil {
			t.Fatalf("expected nil handler for config %v", cfg)
		}
	}
}

func TestIntervalCondition(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeIntervalCondition, rule.Config{
		"minInterval": float64(60),
	}))

	t0 := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	if !c.Evaluate(t0) {
		t.Fatal("first evaluation should pass")
	}
	if c.Evaluate(t0.Add(30 * time.Second)) {
		t.Fatal("evaluation at +30s should fail for 60s interval")
	}
	if !c.Evaluate(t0.Add(61 * time.Second)) {
		t.Fatal("evaluation at +61s should pass")
	}
	// Last pass moved to +61s; immediate re-evaluation fails.
	if c.Evaluate(t0.Add(62 * time.Second)) {
		t.Fatal("back-to-back evaluation should fail")
	}
}

func TestIntervalConditionDurationString(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	c := mustCondition(t, f, condModule(TypeIntervalCondition, rule.Config{
		"minInterval": "2m",
	}))

	t0 := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	if !c.Evaluate(t0) {
		t.Fatal("first evaluation should pass")
	}
	if c.Evaluate(t0.Add(90 * time.Second)) {
		t.Fatal("evaluation at +90s should fail for 2m interval")
	}
}

func TestIntervalConditionInvalidConfig(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	for _, cfg := range []rule.Config{
		{},
		{"minInterval": float64(0)},
		{"minInterval": float64(-5)},
		{"minInterval": "soon"},
	} {
		if h := f.Create(condModule(TypeIntervalCondition, cfg), "r1", nil); h != nil {
			t.Fatalf("expected nil handler for config %v", cfg)
		}
	}
}
