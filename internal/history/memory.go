package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// DefaultMemoryCapacity is how many runs a Memory store keeps.
const DefaultMemoryCapacity = 100

// Memory keeps the most recent runs in process memory.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	runs     []*core.Report // oldest first
}

// NewMemory returns a store holding at most capacity runs.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Save(_ context.Context, report *core.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("save run: report has no run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = slices.DeleteFunc(m.runs, func(r *core.Report) bool { return r.RunID == report.RunID })
	m.runs = append(m.runs, report)
	if over := len(m.runs) - m.capacity; over > 0 {
		m.runs = slices.Delete(m.runs, 0, over)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, runID string) (*core.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
}

func (m *Memory) List(_ context.Context, opts ListOptions) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Summary
	for i := len(m.runs) - 1; i >= 0 && len(out) < opts.limit(); i-- {
		r := m.runs[i]
		if opts.Feed != "" && r.Feed != opts.Feed {
			continue
		}
		out = append(out, Summarize(r))
	}
	return out, nil
}

func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.runs)
	m.runs = slices.DeleteFunc(m.runs, func(r *core.Report) bool { return r.StartedAt.Before(cutoff) })
	return int64(before - len(m.runs)), nil
}

func (m *Memory) Close() error { return nil }
