package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "ruletimer/pkg/logx"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{}, logx.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.Stop(ctx)
		cancel()
	})
	return s
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	for _, spec := range []string{"0 7 * * *", "*/5 * * * *", "30 6 0 * * *", "@hourly"} {
		if err := s.Validate(spec); err != nil {
			t.Fatalf("Validate(%q) error: %v", spec, err)
		}
	}
	for _, spec := range []string{"", "not a cron", "99 * * * *", "* * * * * * *"} {
		if err := s.Validate(spec); err == nil {
			t.Fatalf("Validate(%q) expected error", spec)
		}
	}
}

func TestCronInvalidSpecRegistersNothing(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	h, err := s.Cron("bad", "99 * * * *", func(time.Time) {})
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if h != nil {
		t.Fatal("expected nil handle on error")
	}
}

func TestCronRegistersAndReportsNext(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	s.Start()

	h, err := s.Cron("ok", "0 0 * * *", func(time.Time) {})
	if err != nil {
		t.Fatalf("Cron error: %v", err)
	}
	if h.Next().IsZero() {
		t.Fatal("expected a planned next fire time")
	}
	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("handle should report cancelled")
	}
	if !h.Next().IsZero() {
		t.Fatal("cancelled handle should report zero next time")
	}
}

func TestAtPastTimeFiresImmediately(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	fired := make(chan time.Time, 1)
	_, err := s.At("past", time.Now().Add(-time.Hour), func(at time.Time) { fired <- at })
	if err != nil {
		t.Fatalf("At error: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot with past time did not fire")
	}
}

func TestAtCancelSwallowsFire(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var fires atomic.Int64
	h, err := s.At("soon", time.Now().Add(50*time.Millisecond), func(time.Time) { fires.Add(1) })
	if err != nil {
		t.Fatalf("At error: %v", err)
	}
	h.Cancel()
	h.Cancel() // idempotent

	time.Sleep(300 * time.Millisecond)
	if n := fires.Load(); n != 0 {
		t.Fatalf("cancelled one-shot fired %d times", n)
	}
}

func TestCronSecondsFieldFires(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	s.Start()

	fired := make(chan time.Time, 4)
	h, err := s.Cron("tick", "* * * * * *", func(at time.Time) {
		select {
		case fired <- at:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Cron error: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("per-second cron did not fire")
	}
	h.Cancel()
}

func TestStopCancelsTimers(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	var fires atomic.Int64
	if _, err := s.At("later", time.Now().Add(200*time.Millisecond), func(time.Time) { fires.Add(1) }); err != nil {
		t.Fatalf("At error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	s.Stop(ctx)
	cancel()

	time.Sleep(400 * time.Millisecond)
	if n := fires.Load(); n != 0 {
		t.Fatalf("timer fired %d times after Stop", n)
	}
}
