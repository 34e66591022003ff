// Package timer implements the time-based trigger and condition handlers of
// the rule engine, plus the factory that materializes them per rule.
//
// Triggers register schedules with internal/schedule and push fires into the
// engine through a callback supplied at construction. Conditions never
// schedule anything; the engine evaluates them inline right before running a
// rule's actions.
package timer
