package engine

import (
	"context"
	"fmt"
	"time"

	"ruletimer/internal/automation/timer"
	"ruletimer/internal/rule"
	logx "ruletimer/pkg/logx"
)

// Action module types understood by the engine.
const (
	ActionLog     = "core.Log"
	ActionSetItem = "core.SetItem"
)

// Action configuration keys.
const (
	keyMessage = "message"
	keyItem    = "item"
	keyValue   = "value"
)

func validateAction(m rule.Module) error {
	switch m.Type {
	case ActionLog:
		if m.Config.String(keyMessage) == "" {
			return fmt.Errorf("action %s: %q required", ActionLog, keyMessage)
		}
	case ActionSetItem:
		if m.Config.String(keyItem) == "" {
			return fmt.Errorf("action %s: %q required", ActionSetItem, keyItem)
		}
		if _, ok := m.Config[keyValue]; !ok {
			return fmt.Errorf("action %s: %q required", ActionSetItem, keyValue)
		}
	default:
		return fmt.Errorf("unsupported action type %q", m.Type)
	}
	return nil
}

func (s *Service) runActions(r rule.Rule, at time.Time, out timer.Output) error {
	for _, m := range r.Actions {
		switch m.Type {
		case ActionLog:
			s.log.Info(m.Config.String(keyMessage),
				logx.String("rule", r.ID),
				logx.Time("fired", at),
				logx.Any("output", map[string]any(out)))
		case ActionSetItem:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := s.items.SetState(ctx, m.Config.String(keyItem), fmt.Sprint(m.Config[keyValue]))
			cancel()
			if err != nil {
				return fmt.Errorf("set item %q: %w", m.Config.String(keyItem), err)
			}
		default:
			// validateAction keeps this unreachable for activated rules.
			return fmt.Errorf("unsupported action type %q", m.Type)
		}
	}
	return nil
}
