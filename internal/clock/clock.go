// Package clock abstracts wall-clock time and periodic callbacks so that
// timer-driven code can be driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by the session supervisor and the mock
// credential exchange.
type Clock interface {
	Now() time.Time
	// Every calls fn once per interval until the returned stop func is called.
	// After stop returns no new invocation starts.
	Every(interval time.Duration, fn func()) (stop func())
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) Every(interval time.Duration, fn func()) func() {
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
				// stop may race the tick; prefer stop.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
