package vault

import "time"

// Timer is a cancelable deferred call.
type Timer interface {
	Stop() bool
}

// Scheduler arms auto-lock timers. A failing scheduler leaves the session
// unlocked without a forced lock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (Timer, error)
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) (Timer, error) {
	return time.AfterFunc(d, f), nil
}
