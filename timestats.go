// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gosuri/uitable"
)

// TimeStats holds the accumulated latency of one operation
type TimeStats struct {
	// Name is the operation key, e.g. "get /api/cpcs"
	Name string

	// Count is the number of measured requests
	Count int

	// Sum is the total elapsed time
	Sum time.Duration

	// Min is the shortest elapsed time
	Min time.Duration

	// Max is the longest elapsed time
	Max time.Duration
}

// Avg returns the average elapsed time, or zero if nothing was measured
func (t TimeStats) Avg() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Sum / time.Duration(t.Count)
}

func (t *TimeStats) record(elapsed time.Duration) {
	if t.Count == 0 || elapsed < t.Min {
		t.Min = elapsed
	}
	if elapsed > t.Max {
		t.Max = elapsed
	}
	t.Count++
	t.Sum += elapsed
}

// TimeStatsKeeper accumulates per-operation latency statistics of a session
//
// The keeper is enabled by default and lives as long as its session. It is
// safe for concurrent use.
//
// Example:
//
//	session.Stats().Reset()
//	_, _ = session.Get(ctx, "/api/cpcs")
//	fmt.Print(session.Stats())
type TimeStatsKeeper struct {
	mu      sync.Mutex
	enabled bool
	stats   map[string]*TimeStats
	now     func() time.Time
}

// NewTimeStatsKeeper creates an enabled, empty keeper
func NewTimeStatsKeeper() *TimeStatsKeeper {
	return &TimeStatsKeeper{
		enabled: true,
		stats:   make(map[string]*TimeStats),
		now:     time.Now,
	}
}

// Enable turns on collection
func (k *TimeStatsKeeper) Enable() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = true
}

// Disable turns off collection. Already collected statistics are kept.
func (k *TimeStatsKeeper) Disable() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = false
}

// Enabled reports whether collection is on
func (k *TimeStatsKeeper) Enabled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.enabled
}

// Begin starts measuring an operation and returns the function that ends
// the measurement. Concurrent measurements of the same key are independent.
//
//	end := keeper.Begin("get /api/cpcs")
//	defer end()
func (k *TimeStatsKeeper) Begin(name string) func() {
	start := k.now()
	return func() {
		k.Record(name, k.now().Sub(start))
	}
}

// Record adds one measurement for an operation
func (k *TimeStatsKeeper) Record(name string, elapsed time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.enabled {
		return
	}
	st, ok := k.stats[name]
	if !ok {
		st = &TimeStats{Name: name}
		k.stats[name] = st
	}
	st.record(elapsed)
}

// Get returns the statistics of an operation
func (k *TimeStatsKeeper) Get(name string) (TimeStats, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	st, ok := k.stats[name]
	if !ok {
		return TimeStats{Name: name}, false
	}
	return *st, true
}

// Snapshot returns a copy of all statistics sorted by operation name
func (k *TimeStatsKeeper) Snapshot() []TimeStats {
	k.mu.Lock()
	defer k.mu.Unlock()

	result := make([]TimeStats, 0, len(k.stats))
	for _, st := range k.stats {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Reset discards all statistics
func (k *TimeStatsKeeper) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stats = make(map[string]*TimeStats)
}

// String renders the statistics as a table, times in seconds
func (k *TimeStatsKeeper) String() string {
	snapshot := k.Snapshot()
	if !k.Enabled() {
		return "Time statistics (disabled)\n"
	}

	table := uitable.New()
	table.MaxColWidth = 80
	for _, col := range []int{0, 1, 2, 3} {
		table.RightAlign(col)
	}
	table.AddRow("Count", "Average", "Minimum", "Maximum", "Operation name")
	for _, st := range snapshot {
		table.AddRow(st.Count,
			seconds(st.Avg()),
			seconds(st.Min),
			seconds(st.Max),
			st.Name)
	}
	return "Time statistics (times in seconds):\n" + table.String() + "\n"
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
