// Package profiler - Stage timers and runtime memory snapshots.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Timer accumulates the durations of a repeated stage.
type Timer struct {
	name      string
	start     time.Time
	last      time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// NewTimer creates a named timer.
func NewTimer(name string) *Timer {
	return &Timer{name: name}
}

// Name returns the stage name.
func (t *Timer) Name() string {
	return t.name
}

// Tic starts a measurement.
func (t *Timer) Tic() {
	t.start = time.Now()
}

// Toc ends the measurement started by Tic and records it.
//
// Returns:
//   - time.Duration: The measured duration.
func (t *Timer) Toc() time.Duration {
	t.record(time.Since(t.start))
	return t.last
}

func (t *Timer) record(d time.Duration) {
	t.last = d
	t.totalTime += d
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
	t.count++
}

// Last returns the most recent measurement.
func (t *Timer) Last() time.Duration {
	return t.last
}

// Average returns the mean of every measurement, 0 before the first one.
func (t *Timer) Average() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.totalTime / time.Duration(t.count)
}

// Calls returns the number of measurements.
func (t *Timer) Calls() int64 {
	return t.count
}

// Profiler groups named timers.
type Profiler struct {
	mu     sync.Mutex
	timers map[string]*Timer
}

// New creates an empty profiler.
func New() *Profiler {
	return &Profiler{timers: make(map[string]*Timer)}
}

// Timer returns the timer with the given name, creating it on first use.
func (p *Profiler) Timer(name string) *Timer {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timers[name]
	if !ok {
		t = NewTimer(name)
		p.timers[name] = t
	}
	return t
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func() time.Duration: Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.mu.Lock()
		defer p.mu.Unlock()

		t, ok := p.timers[name]
		if !ok {
			t = NewTimer(name)
			p.timers[name] = t
		}
		t.record(d)
		return d
	}
}

// MarshalZerologObject writes per-timer averages, min, max and counts.
func (p *Profiler) MarshalZerologObject(e *zerolog.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.timers))
	for name := range p.timers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := p.timers[name]
		e.Dict(name, zerolog.Dict().
			Dur("avg", t.Average()).
			Dur("min", t.minTime).
			Dur("max", t.maxTime).
			Int64("count", t.count))
	}
}

// MemorySnapshot is a subset of runtime.MemStats.
type MemorySnapshot struct {
	Alloc       uint64
	TotalAlloc  uint64
	Sys         uint64
	HeapObjects uint64
	NumGC       uint32
}

// ReadMemory samples the runtime memory statistics.
func ReadMemory() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemorySnapshot{
		Alloc:       m.Alloc,
		TotalAlloc:  m.TotalAlloc,
		Sys:         m.Sys,
		HeapObjects: m.HeapObjects,
		NumGC:       m.NumGC,
	}
}

// MarshalZerologObject writes the snapshot with human readable sizes.
func (m MemorySnapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Str("alloc", FormatBytes(m.Alloc)).
		Str("total_alloc", FormatBytes(m.TotalAlloc)).
		Str("sys", FormatBytes(m.Sys)).
		Uint64("heap_objects", m.HeapObjects).
		Uint32("gc_cycles", m.NumGC)
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
