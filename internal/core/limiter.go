package core

// limiter.go bounds how many import runs execute at once.
//
// Each run holds a store snapshot in memory and keeps the record store busy,
// so runs take a slot from a semaphore first. When all slots are occupied,
// new runs wait up to maxWait before failing with ErrTooManyRuns. Shutdown
// uses WaitForDrain to let in-flight runs finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyRuns is returned when all run slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyRuns = errors.New("too many concurrent import runs, please try again later")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter controls concurrent import runs using a semaphore.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	running map[string]time.Time
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent runs.
// Runs that cannot acquire a slot within maxWait receive ErrTooManyRuns.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		running: make(map[string]time.Time),
	}
}

// Acquire takes a slot for the run identified by label.
// The caller MUST call Release(label) when the run completes (use defer).
func (l *RunLimiter) Acquire(ctx context.Context, label string) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.track(label)
		return nil
	case <-timer.C:
		return ErrTooManyRuns
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (l *RunLimiter) TryAcquire(label string) bool {
	select {
	case l.slots <- struct{}{}:
		l.track(label)
		return true
	default:
		return false
	}
}

func (l *RunLimiter) track(label string) {
	l.mu.Lock()
	l.running[label] = time.Now()
	l.mu.Unlock()
}

// Release frees the slot held by label.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *RunLimiter) Release(label string) {
	l.mu.Lock()
	delete(l.running, label)
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of runs holding a slot.
func (l *RunLimiter) ActiveCount() int {
	return len(l.slots)
}

// MaxConcurrent returns the maximum allowed concurrent runs.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until all active runs complete or ctx is cancelled.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter for the dashboard.
type LimiterStatus struct {
	Active        int              `json:"active"`
	Available     int              `json:"available"`
	MaxConcurrent int              `json:"max_concurrent"`
	Running       map[string]int64 `json:"running"` // label -> seconds running
}

// Status returns the current limiter state for monitoring.
func (l *RunLimiter) Status() LimiterStatus {
	l.mu.Lock()
	running := make(map[string]int64, len(l.running))
	for label, started := range l.running {
		running[label] = int64(time.Since(started).Seconds())
	}
	l.mu.Unlock()

	return LimiterStatus{
		Active:        len(l.slots),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
		Running:       running,
	}
}
