package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks registered with Every fire
// synchronously inside Advance, in due-time order; callbacks due at the same
// instant fire in registration order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	jobs    map[int]*fakeJob
	slept   time.Duration
	advance bool
}

type fakeJob struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start, jobs: map[int]*fakeJob{}}
}

// AdvanceOnSleep makes Sleep move the clock forward by the slept duration
// (without firing jobs) instead of returning immediately with time frozen.
func (f *Fake) AdvanceOnSleep(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance = enabled
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(interval time.Duration, fn func()) func() {
	if interval <= 0 {
		panic("clock: non-positive interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.jobs[id] = &fakeJob{id: id, interval: interval, next: f.now.Add(interval), fn: fn}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.jobs, id)
	}
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept += d
	if f.advance && d > 0 {
		f.now = f.now.Add(d)
	}
	return nil
}

// Slept reports the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Pending reports how many periodic callbacks are registered.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// Advance moves the clock forward by d, firing every callback that comes due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		job := f.nextDueLocked(target)
		if job == nil {
			break
		}

		f.now = job.next
		job.next = job.next.Add(job.interval)
		fn := job.fn

		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	if target.After(f.now) {
		f.now = target
	}
	f.mu.Unlock()
}

func (f *Fake) nextDueLocked(target time.Time) *fakeJob {
	due := make([]*fakeJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		if !job.next.After(target) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})

	return due[0]
}
