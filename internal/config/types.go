package config

import (
	"fmt"
	"strings"

	"ruletimer/internal/rule"
)

// Config is the whole daemon configuration: logging, timezone, optional
// persistence, initial item states, and the declarative rule set.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Timezone string         `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
	Storage  *StorageConfig `json:"storage,omitempty"`

	// Items seeds the registry with initial states. Persisted states (when
	// storage is enabled) win over these seeds.
	Items map[string]string `json:"items,omitempty"`

	Rules []rule.Rule `json:"rules"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil means enabled
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	storage: { driver: file, path: ./ruletimer_store }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ConsoleEnabled resolves the console flag's default.
func (c LoggingConfig) ConsoleEnabled() bool {
	if c.Console == nil {
		return true
	}
	return *c.Console
}

// Validate performs the structural checks that must hold before a config is
// committed: unique rule ids and per-rule module sanity.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Timezone != "" && strings.TrimSpace(c.Timezone) == "" {
		return fmt.Errorf("timezone must not be blank")
	}
	seen := map[string]bool{}
	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
