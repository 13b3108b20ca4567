// Package schedule abstracts interval and one-shot timers so pollers and
// expiry timers can be cancelled explicitly and driven by a virtual clock in tests.
package schedule

import (
	"sync"
	"time"
)

// Cancel stops a scheduled task. Calling it more than once is safe.
type Cancel func()

type Scheduler interface {
	Now() time.Time
	// Every runs task on each interval tick until cancelled. It does not run
	// task immediately.
	Every(interval time.Duration, task func()) Cancel
	// After runs task once after delay unless cancelled first.
	After(delay time.Duration, task func()) Cancel
}

// Real schedules on the wall clock. Each tick runs in its own goroutine, so a
// slow task never delays the next one and results may complete out of order.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

func (Real) Every(interval time.Duration, task func()) Cancel {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				go task()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

func (Real) After(delay time.Duration, task func()) Cancel {
	timer := time.AfterFunc(delay, task)
	return func() {
		timer.Stop()
	}
}
