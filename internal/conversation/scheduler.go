package conversation

import "time"

// Timer is a pending idle callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms idle timers. Sessions use SystemScheduler unless a test
// injects its own.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemScheduler is backed by time.AfterFunc.
var SystemScheduler Scheduler = systemScheduler{}
