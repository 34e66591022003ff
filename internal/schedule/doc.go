// Package schedule provides the shared cron-capable scheduler.
//
// It is responsible only for:
//   - registering recurring (cron / daily) and one-shot schedules
//   - running callbacks on the cron runner's goroutine or a timer goroutine
//   - handing out cancellable Schedule handles
//
// What a fired callback means is up to the caller; trigger handlers in
// internal/automation/timer translate fires into rule-engine events.
package schedule
