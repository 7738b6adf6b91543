package session

import "time"

// Scheduler arms one-shot tasks for the token lifecycle. Schedule must not
// run fn synchronously; the returned cancel func stops the task if it has
// not fired yet. Tests inject a fake to drive refreshes without wall-clock
// waits.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production scheduler, backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
