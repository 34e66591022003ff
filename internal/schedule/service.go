package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "ruletimer/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means local time
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser  cron.Parser
	c       *cron.Cron
	started bool

	// one-shot timers, keyed by schedule handle id
	tmu    sync.Mutex
	timers map[string]*time.Timer
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timers: map[string]*time.Timer{},
	}
}

// Start starts the cron runner. Schedules registered before Start are kept
// and begin firing once the runner is up.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	if s.c == nil {
		s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	}
	s.c.Start()
	s.started = true
	s.log.Info("scheduler started", logx.String("tz", loc.String()))
}

// Stop stops cron triggering and all one-shot timers. In-flight callbacks are
// awaited up to ctx's deadline.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Validate checks a cron spec without registering anything.
func (s *Service) Validate(spec string) error {
	_, err := s.parser.Parse(strings.TrimSpace(spec))
	return err
}

// Location returns the scheduler's timezone.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// ensureCronLocked lazily constructs the cron runner so schedules can be
// registered before Start. Call with s.mu held.
func (s *Service) ensureCronLocked() *cron.Cron {
	if s.c == nil {
		loc := s.loc
		if loc == nil {
			loc = s.loadLocationLocked()
			s.loc = loc
		}
		s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	}
	return s.c
}
