package schedule

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	logx "ruletimer/pkg/logx"
)

// Kind distinguishes recurring cron schedules from one-shot timers.
type Kind int

const (
	KindCron Kind = iota
	KindOnce
)

// Schedule is a cancellable handle for one registered schedule.
//
// Cancel is idempotent and safe to call concurrently with the scheduler
// firing the callback: a fire that races with cancellation is swallowed.
type Schedule struct {
	id   string
	name string
	spec string
	kind Kind

	svc       *Service
	cancelled atomic.Bool

	entryID cron.EntryID // cron only
	runAt   time.Time    // once only
}

func (h *Schedule) ID() string   { return h.id }
func (h *Schedule) Name() string { return h.name }
func (h *Schedule) Spec() string { return h.spec }
func (h *Schedule) Kind() Kind   { return h.kind }

// Cancelled reports whether Cancel has been called.
func (h *Schedule) Cancelled() bool { return h.cancelled.Load() }

// Next returns the next planned fire time, or zero when none is known
// (cancelled, stopped scheduler, or an already-fired one-shot).
func (h *Schedule) Next() time.Time {
	if h.cancelled.Load() {
		return time.Time{}
	}
	switch h.kind {
	case KindOnce:
		h.svc.tmu.Lock()
		_, live := h.svc.timers[h.id]
		h.svc.tmu.Unlock()
		if !live {
			return time.Time{}
		}
		return h.runAt
	default:
		h.svc.mu.Lock()
		defer h.svc.mu.Unlock()
		if h.svc.c == nil {
			return time.Time{}
		}
		return h.svc.c.Entry(h.entryID).Next
	}
}

// Cancel unregisters the schedule. Safe to call multiple times.
func (h *Schedule) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	switch h.kind {
	case KindOnce:
		h.svc.tmu.Lock()
		if t, ok := h.svc.timers[h.id]; ok {
			_ = t.Stop()
			delete(h.svc.timers, h.id)
		}
		h.svc.tmu.Unlock()
	default:
		h.svc.mu.Lock()
		if h.svc.c != nil {
			h.svc.c.Remove(h.entryID)
		}
		h.svc.mu.Unlock()
	}
	h.svc.log.Debug("schedule cancelled", logx.String("name", h.name), logx.String("id", h.id))
}

// Cron registers a recurring schedule for the given cron spec.
// The spec is validated before anything is registered.
func (s *Service) Cron(name, spec string, fn func(at time.Time)) (*Schedule, error) {
	spec = strings.TrimSpace(spec)
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	if fn == nil {
		return nil, errors.New("callback required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	h := &Schedule{
		id:   uuid.NewString(),
		name: name,
		spec: spec,
		kind: KindCron,
		svc:  s,
	}
	job := cron.FuncJob(func() {
		// A fire may race with Cancel; treat the handle as the source of truth.
		if h.cancelled.Load() {
			return
		}
		fn(time.Now().In(s.Location()))
	})

	s.mu.Lock()
	c := s.ensureCronLocked()
	eid, err := c.AddJob(spec, job)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	h.entryID = eid
	next := s.previewNextRunsLocked(spec, 3)
	s.mu.Unlock()

	args := []logx.Field{logx.String("name", name), logx.String("id", h.id), logx.String("spec", spec)}
	if next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return h, nil
}

// Daily registers a recurring schedule at a fixed wall-clock time each day.
func (s *Service) Daily(name string, at TimeOfDay, fn func(at time.Time)) (*Schedule, error) {
	spec := fmt.Sprintf("%d %d %d * * *", at.Second, at.Minute, at.Hour)
	return s.Cron(name, spec, fn)
}

// At registers a one-shot schedule. A time already in the past fires
// immediately.
func (s *Service) At(name string, at time.Time, fn func(at time.Time)) (*Schedule, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	if at.IsZero() {
		return nil, errors.New("at required")
	}
	if fn == nil {
		return nil, errors.New("callback required")
	}

	loc := s.Location()
	runAt := at.In(loc)
	h := &Schedule{
		id:    uuid.NewString(),
		name:  name,
		spec:  "@at " + runAt.Format(time.RFC3339),
		kind:  KindOnce,
		svc:   s,
		runAt: runAt,
	}

	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}

	s.tmu.Lock()
	timer := time.AfterFunc(delay, func() {
		s.tmu.Lock()
		delete(s.timers, h.id)
		s.tmu.Unlock()
		if h.cancelled.Load() {
			return
		}
		fn(time.Now().In(loc))
	})
	s.timers[h.id] = timer
	s.tmu.Unlock()

	s.log.Debug("one-shot registered",
		logx.String("name", name), logx.String("id", h.id), logx.Time("at", runAt))
	return h, nil
}

// previewNextRunsLocked returns a short, human-friendly list of upcoming run
// times for the given cron spec. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if s.log.IsZero() || !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
