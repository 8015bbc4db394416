// Package profiler - Rolling per-operation latency statistics.
package profiler

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the number of recent samples kept per operation.
const DefaultWindow = 600

// Stat summarizes the recent durations of one operation.
type Stat struct {
	// Count is the number of samples ever recorded, including evicted ones.
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
}

// tracker holds a bounded window of durations for one operation.
type tracker struct {
	durations []time.Duration
	total     time.Duration
	count     int64
}

// Timings tracks operation durations. It is safe for concurrent use.
type Timings struct {
	mu      sync.Mutex
	window  int
	started time.Time
	ops     map[string]*tracker
}

// NewTimings creates a recorder keeping at most window samples per operation.
// A non-positive window uses DefaultWindow.
func NewTimings(window int) *Timings {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Timings{window: window, started: time.Now(), ops: make(map[string]*tracker)}
}

// Start begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Records the elapsed time when called.
func (t *Timings) Start(name string) func() {
	start := time.Now()
	return func() {
		t.Record(name, time.Since(start))
	}
}

// Record adds one sample, evicting the oldest once the window is full.
func (t *Timings) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.ops[name]
	if !ok {
		tr = &tracker{durations: make([]time.Duration, 0, t.window)}
		t.ops[name] = tr
	}
	if len(tr.durations) == t.window {
		tr.total -= tr.durations[0]
		tr.durations = append(tr.durations[:0], tr.durations[1:]...)
	}
	tr.durations = append(tr.durations, d)
	tr.total += d
	tr.count++
}

// Uptime is the time since the recorder was created.
func (t *Timings) Uptime() time.Duration {
	return time.Since(t.started)
}

// Names lists the recorded operations in sorted order.
func (t *Timings) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.ops))
	for name := range t.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the statistics of every operation over its window.
func (t *Timings) Snapshot() map[string]Stat {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]Stat, len(t.ops))
	for name, tr := range t.ops {
		if len(tr.durations) == 0 {
			continue
		}
		lo, hi := tr.durations[0], tr.durations[0]
		for _, d := range tr.durations[1:] {
			if d < lo {
				lo = d
			}
			if d > hi {
				hi = d
			}
		}
		stats[name] = Stat{
			Count: tr.count,
			AvgMs: milliseconds(tr.total / time.Duration(len(tr.durations))),
			MinMs: milliseconds(lo),
			MaxMs: milliseconds(hi),
		}
	}
	return stats
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
