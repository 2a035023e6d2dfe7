package wsclient

import "time"

// maxBackoffShift caps the exponent so the delay never overflows.
const maxBackoffShift = 30

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Backoff returns the delay before reconnect attempt number attempt+1:
// 2^attempt seconds (1s, 2s, 4s, 8s, 16s, ...).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return time.Duration(1<<attempt) * time.Second
}
