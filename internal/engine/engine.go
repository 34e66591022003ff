// Package engine materializes declarative rules: it asks the timer factory
// for trigger/condition handlers, gates fires through the conditions, and
// runs the rule's actions.
package engine

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ruletimer/internal/automation/timer"
	"ruletimer/internal/eventbus"
	"ruletimer/internal/items"
	"ruletimer/internal/rule"
	logx "ruletimer/pkg/logx"
)

type liveRule struct {
	def        rule.Rule
	conditions []timer.ConditionHandler
}

type Service struct {
	log     logx.Logger
	bus     eventbus.Bus
	factory *timer.Factory
	items   *items.Registry

	// Throttles repeated failure logs during trigger storms.
	warnLimiter *rate.Limiter

	mu    sync.Mutex
	rules map[string]*liveRule
}

func New(factory *timer.Factory, reg *items.Registry, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:         log,
		bus:         bus,
		factory:     factory,
		items:       reg,
		warnLimiter: rate.NewLimiter(rate.Every(10*time.Second), 5),
		rules:       map[string]*liveRule{},
	}
}

// Apply replaces the active rule set. Existing handlers are disposed and
// every enabled rule is activated from scratch; a rule that fails activation
// is skipped (and logged) without affecting the others.
func (s *Service) Apply(rules []rule.Rule) {
	// Never dispose handlers while holding s.mu: an in-flight fire holds its
	// handler's mutex and takes s.mu in onTriggered.
	s.mu.Lock()
	s.rules = map[string]*liveRule{}
	s.mu.Unlock()
	s.factory.DisposeAll()

	active, failed := 0, 0
	for _, r := range rules {
		if r.Disabled {
			s.log.Debug("rule disabled; skipping", logx.String("rule", r.ID))
			continue
		}
		if err := s.Activate(r); err != nil {
			failed++
			s.log.Error("rule activation failed", logx.String("rule", r.ID), logx.Err(err))
			continue
		}
		active++
	}
	s.log.Info("rules applied", logx.Int("active", active), logx.Int("failed", failed))
}

// Activate materializes one rule. On any module failure everything already
// created for the rule is torn down again, so a rule is either fully live or
// fully absent.
func (s *Service) Activate(r rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	ruleID := r.ID
	lr := &liveRule{def: r}

	for _, m := range r.Triggers {
		if !s.factory.Supports(m.Type) {
			return fmt.Errorf("unsupported trigger type %q", m.Type)
		}
		fire := func(at time.Time, out timer.Output) {
			s.onTriggered(ruleID, at, out)
		}
		if h := s.factory.Create(m, ruleID, fire); h == nil {
			s.factory.Dispose(ruleID)
			return fmt.Errorf("trigger %q construction failed", m.Type)
		}
	}

	for _, m := range r.Conditions {
		if !s.factory.Supports(m.Type) {
			s.factory.Dispose(ruleID)
			return fmt.Errorf("unsupported condition type %q", m.Type)
		}
		h := s.factory.Create(m, ruleID, nil)
		if h == nil {
			s.factory.Dispose(ruleID)
			return fmt.Errorf("condition %q construction failed", m.Type)
		}
		cond, ok := h.(timer.ConditionHandler)
		if !ok {
			s.factory.Dispose(ruleID)
			return fmt.Errorf("module type %q is not a condition", m.Type)
		}
		lr.conditions = append(lr.conditions, cond)
	}

	for _, m := range r.Actions {
		if err := validateAction(m); err != nil {
			s.factory.Dispose(ruleID)
			return err
		}
	}

	s.mu.Lock()
	s.rules[ruleID] = lr
	s.mu.Unlock()
	s.log.Debug("rule activated",
		logx.String("rule", ruleID),
		logx.Int("triggers", len(r.Triggers)),
		logx.Int("conditions", len(r.Conditions)))
	return nil
}

// Deactivate tears down one rule. Unknown rule ids are a no-op.
func (s *Service) Deactivate(ruleID string) {
	s.mu.Lock()
	delete(s.rules, ruleID)
	s.mu.Unlock()
	s.factory.Dispose(ruleID)
}

// Shutdown disposes every rule's handlers.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.rules = map[string]*liveRule{}
	s.mu.Unlock()
	s.factory.DisposeAll()
}

func (s *Service) onTriggered(ruleID string, at time.Time, out timer.Output) {
	s.mu.Lock()
	lr, ok := s.rules[ruleID]
	s.mu.Unlock()
	if !ok {
		// Raced with deactivation; the trigger is already disposed or about to be.
		return
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFired, Time: at, Data: ruleID})

	for _, cond := range lr.conditions {
		if !cond.Evaluate(at) {
			s.log.Debug("rule skipped by condition", logx.String("rule", ruleID), logx.Time("at", at))
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeRuleSkipped, Time: at, Data: ruleID})
			return
		}
	}

	if err := s.runActions(lr.def, at, out); err != nil {
		if s.warnLimiter.Allow() {
			s.log.Warn("rule run failed", logx.String("rule", ruleID), logx.Err(err))
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRuleRunFailed, Time: at, Data: ruleID})
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRuleFired, Time: at, Data: ruleID})
}
