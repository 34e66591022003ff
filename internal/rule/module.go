// Package rule defines the declarative rule data model: a rule groups
// trigger, condition, and action modules, each identified by a module-type id
// and carrying an opaque configuration map.
package rule

import (
	"fmt"
	"strings"
	"time"
)

// Module describes one trigger, condition, or action of a rule.
// It is immutable once handed to a handler factory.
type Module struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Config Config `json:"config,omitempty"`
}

// Rule is the owning unit that groups triggers, conditions, and actions.
type Rule struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Disabled   bool     `json:"disabled,omitempty"`
	Triggers   []Module `json:"triggers"`
	Conditions []Module `json:"conditions,omitempty"`
	Actions    []Module `json:"actions"`
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id required")
	}
	if len(r.Triggers) == 0 {
		return fmt.Errorf("rule %q: at least one trigger required", r.ID)
	}
	seen := map[string]bool{}
	for _, m := range append(append(append([]Module{}, r.Triggers...), r.Conditions...), r.Actions...) {
		if strings.TrimSpace(m.Type) == "" {
			return fmt.Errorf("rule %q: module type required", r.ID)
		}
		if m.ID != "" {
			if seen[m.ID] {
				return fmt.Errorf("rule %q: duplicate module id %q", r.ID, m.ID)
			}
			seen[m.ID] = true
		}
	}
	return nil
}

// Config is an opaque module configuration map.
//
// Values come out of the strict YAML/JSON decode in internal/config, so
// numbers are float64 and lists are []any; the accessors below normalize
// those shapes.
type Config map[string]any

// String returns the trimmed string value for key, or "".
func (c Config) String(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Bool returns the bool value for key, or def when absent/mistyped.
func (c Config) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Seconds reads a duration that may be specified as a bare number (seconds)
// or as a Go duration string ("90s", "2m").
func (c Config) Seconds(key string) (time.Duration, bool, error) {
	v, ok := c[key]
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case float64:
		return time.Duration(x * float64(time.Second)), true, nil
	case int:
		return time.Duration(x) * time.Second, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, false, fmt.Errorf("%s: invalid duration %q: %w", key, x, err)
		}
		return d, true, nil
	default:
		return 0, false, fmt.Errorf("%s: expected seconds or duration string, got %T", key, v)
	}
}

// StringSlice returns the list value for key with every element stringified.
func (c Config) StringSlice(key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, strings.TrimSpace(fmt.Sprint(e)))
		}
		return out
	case string:
		// single value is accepted as a one-element list
		return []string{strings.TrimSpace(x)}
	default:
		return nil
	}
}
