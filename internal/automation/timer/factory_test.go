package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ruletimer/internal/eventbus"
	"ruletimer/internal/items"
	"ruletimer/internal/rule"
	"ruletimer/internal/schedule"
	logx "ruletimer/pkg/logx"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	sched := schedule.New(schedule.Config{}, logx.Nop())
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		sched.Stop(ctx)
		cancel()
	})
	reg := items.NewRegistry(eventbus.New(), nil, logx.Nop())
	return NewFactory(sched, reg, logx.Nop())
}

func TestFactoryTypes(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	want := []string{
		TypeCronTrigger,
		TypeDateTimeTrigger,
		TypeDayOfWeekCondition,
		TypeIntervalCondition,
		TypeTimeOfDayCondition,
		TypeTimeOfDayTrigger,
	}
	got := f.Types()
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	for _, typ := range want {
		if !f.Supports(typ) {
			t.Fatalf("Supports(%q) = false", typ)
		}
	}
}

func TestFactoryUnsupportedType(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	m := rule.Module{ID: "t", Type: "timer.Unknown", Config: rule.Config{}}
	if h := f.Create(m, "r1", func(time.Time, Output) {}); h != nil {
		t.Fatal("expected nil handler for unsupported type")
	}
	if n := f.liveCount("r1"); n != 0 {
		t.Fatalf("live set changed for failed create: %d", n)
	}
}

func TestCronTriggerInvalidExpression(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)
	for _, cfg := range []rule.Config{
		{},
		{"cronExpression": "99 * * * *"},
		{"cronExpression": "words"},
	} {
		m := rule.Module{ID: "t", Type: TypeCronTrigger, Config: cfg}
		if h := f.Create(m, "r1", func(time.Time, Output) {}); h != nil {
			t.Fatalf("expected nil handler for config %v", cfg)
		}
		if n := f.liveCount("r1"); n != 0 {
			t.Fatalf("live set changed for failed create: %d", n)
		}
	}
}

func TestCronTriggerFiresWithTimestamp(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	fired := make(chan Output, 4)
	m := rule.Module{ID: "t", Type: TypeCronTrigger, Config: rule.Config{"cronExpression": "* * * * * *"}}
	h := f.Create(m, "r1", func(at time.Time, out Output) {
		select {
		case fired <- out:
		default:
		}
	})
	if h == nil {
		t.Fatal("Create returned nil for valid cron trigger")
	}
	if n := f.liveCount("r1"); n != 1 {
		t.Fatalf("liveCount = %d, want 1", n)
	}

	select {
	case out := <-fired:
		if _, ok := out[OutputFiredTime].(time.Time); !ok {
			t.Fatalf("output %v missing %q timestamp", out, OutputFiredTime)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("cron trigger did not fire")
	}
}

func TestDisposeThenFireIsSilent(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	var fires atomic.Int64
	m := rule.Module{ID: "t", Type: TypeCronTrigger, Config: rule.Config{"cronExpression": "* * * * * *"}}
	h := f.Create(m, "r1", func(time.Time, Output) { fires.Add(1) })
	if h == nil {
		t.Fatal("Create returned nil")
	}

	// Wait for at least one fire so the schedule is known to be live.
	deadline := time.Now().Add(3 * time.Second)
	for fires.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("trigger never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}

	f.Dispose("r1")
	f.Dispose("r1") // idempotent
	seen := fires.Load()

	time.Sleep(1500 * time.Millisecond)
	if got := fires.Load(); got != seen {
		t.Fatalf("observed %d fires after dispose", got-seen)
	}
	if n := f.liveCount("r1"); n != 0 {
		t.Fatalf("liveCount after dispose = %d", n)
	}
}

func TestDisposeWaitsForInFlightFire(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	var completed atomic.Bool

	m := rule.Module{ID: "t", Type: TypeCronTrigger, Config: rule.Config{"cronExpression": "* * * * * *"}}
	h := f.Create(m, "r1", func(time.Time, Output) {
		once.Do(func() {
			close(entered)
			<-release
			completed.Store(true)
		})
	})
	if h == nil {
		t.Fatal("Create returned nil")
	}

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger never fired")
	}

	disposed := make(chan struct{})
	go func() {
		f.Dispose("r1")
		close(disposed)
	}()

	// Dispose must not return while the fire callback is still running.
	select {
	case <-disposed:
		close(release)
		t.Fatal("Dispose returned with a fire still in flight")
	case <-time.After(200 * time.Millisecond):
		close(release)
	}
	select {
	case <-disposed:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose did not return after the fire completed")
	}
	if !completed.Load() {
		t.Fatal("fire side effect not complete before Dispose returned")
	}
}

func TestTimeOfDayTriggerConstruction(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	ok := rule.Module{ID: "t", Type: TypeTimeOfDayTrigger, Config: rule.Config{"time": "07:00"}}
	if h := f.Create(ok, "r1", func(time.Time, Output) {}); h == nil {
		t.Fatal("Create returned nil for valid time-of-day trigger")
	}

	for _, cfg := range []rule.Config{
		{},
		{"time": "25:00"},
		{"time": "seven"},
	} {
		m := rule.Module{ID: "t2", Type: TypeTimeOfDayTrigger, Config: cfg}
		if h := f.Create(m, "r2", func(time.Time, Output) {}); h != nil {
			t.Fatalf("expected nil handler for config %v", cfg)
		}
	}
}

func TestDisposeAllTwice(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	for _, rid := range []string{"ra", "rb"} {
		m := rule.Module{ID: "t", Type: TypeCronTrigger, Config: rule.Config{"cronExpression": "0 0 * * *"}}
		if h := f.Create(m, rid, func(time.Time, Output) {}); h == nil {
			t.Fatalf("Create for %s returned nil", rid)
		}
	}
	if f.liveCount("ra")+f.liveCount("rb") != 2 {
		t.Fatal("expected two live handlers")
	}

	f.DisposeAll()
	if f.liveCount("ra")+f.liveCount("rb") != 0 {
		t.Fatal("DisposeAll left live handlers")
	}
	f.DisposeAll() // safe to repeat
}
