// Package monitor samples resource usage and cache effectiveness on an
// interval, retains bounded history, and derives threshold-based
// optimization recommendations. The sampling loop runs independently of
// the invocation path and only copies already-mutated counters.
package monitor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arclight-ai/capd/internal/cache"
	"github.com/arclight-ai/capd/internal/exec"
)

var (
	// ErrAlreadyRunning is returned by Start when monitoring is active.
	ErrAlreadyRunning = errors.New("monitor: already running")
	// ErrNotRunning is returned by Stop when monitoring is inactive.
	ErrNotRunning = errors.New("monitor: not running")
	// ErrInvalidInterval rejects non-positive sampling intervals.
	ErrInvalidInterval = errors.New("monitor: interval must be positive")
)

// CacheStatser exposes a resolution cache's counters.
type CacheStatser interface {
	Stats() cache.Stats
}

// ExecStatser exposes the coordinator's aggregate counters.
type ExecStatser interface {
	Stats() exec.Stats
}

// Config bounds the monitor's history and parameterizes its
// recommendation thresholds. Zero values fall back to defaults.
type Config struct {
	HistorySize int
	Thresholds  Thresholds
}

const defaultHistorySize = 100

// Monitor is a process-wide, independently lifecycled observer over the
// two resolution caches and the coordinator.
type Monitor struct {
	tools      CacheStatser
	exts       CacheStatser
	coord      ExecStatser
	thresholds Thresholds

	mu          sync.Mutex
	running     bool
	done        chan struct{}
	stopped     chan struct{}
	history     []Sample
	historySize int
}

// New creates a stopped monitor.
func New(cfg Config, tools, exts CacheStatser, coord ExecStatser) *Monitor {
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	return &Monitor{
		tools:       tools,
		exts:        exts,
		coord:       coord,
		thresholds:  cfg.Thresholds.withDefaults(),
		historySize: size,
	}
}

// Start begins periodic sampling. Starting a running monitor returns
// ErrAlreadyRunning with no state change.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.loop(interval, m.done, m.stopped)
	slog.Info("performance monitoring started", "interval", interval)
	return nil
}

// Stop halts sampling. Retained history is preserved until explicitly
// cleared. Stopping a stopped monitor returns ErrNotRunning.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	close(m.done)
	stopped := m.stopped
	m.mu.Unlock()

	<-stopped
	slog.Info("performance monitoring stopped")
	return nil
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(interval time.Duration, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sample := m.Collect()
			m.append(sample)
			if recs := m.thresholds.recommendations(sample); len(recs) > 0 {
				slog.Debug("performance recommendations", "recommendations", recs)
			}
		}
	}
}

// Collect takes one sample without touching the history. Counter reads
// are snapshot copies; no resolver lock is held any longer than its own
// Stats call.
func (m *Monitor) Collect() Sample {
	return Sample{
		Timestamp: time.Now(),
		Resource:  collectResource(),
		Caches: cache.LayerStats{
			Tool:      m.tools.Stats(),
			Extension: m.exts.Stats(),
		},
		Exec: m.coord.Stats(),
	}
}

func (m *Monitor) append(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, s)
	if len(m.history) > m.historySize {
		// Ring semantics: drop the oldest.
		m.history = m.history[len(m.history)-m.historySize:]
	}
}

// History returns a copy of the retained samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.history))
	copy(out, m.history)
	return out
}

// ClearHistory drops all retained samples.
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// Summary describes the monitor's state, a current sample, the trend
// over the trailing window, and derived recommendations.
type Summary struct {
	Running          bool     `json:"running"`
	SampleCount      int      `json:"sample_count"`
	Current          Sample   `json:"current"`
	AvgMemoryPercent float64  `json:"avg_memory_percent"`
	AvgGoroutines    float64  `json:"avg_goroutines"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// trendWindow is how many trailing samples feed the averages.
const trendWindow = 10

// Summary computes the current summary. When no history exists it
// samples once on demand so callers always get a current view.
func (m *Monitor) Summary() Summary {
	current := m.Collect()

	m.mu.Lock()
	running := m.running
	count := len(m.history)
	window := m.history
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}
	var memSum, goroSum float64
	for _, s := range window {
		memSum += s.Resource.MemoryPercent
		goroSum += float64(s.Resource.Goroutines)
	}
	m.mu.Unlock()

	sum := Summary{
		Running:         running,
		SampleCount:     count,
		Current:         current,
		Recommendations: m.thresholds.recommendations(current),
	}
	if n := len(window); n > 0 {
		sum.AvgMemoryPercent = memSum / float64(n)
		sum.AvgGoroutines = goroSum / float64(n)
	}
	return sum
}
