package exec

import (
	"context"
	"sync"
	"time"
)

// Outcome classifies how an invocation finished.
type Outcome string

const (
	// OutcomeSuccess means the capability ran and returned normally.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the capability itself failed or the
	// invocation was cancelled before dispatch.
	OutcomeFailure Outcome = "failure"
	// OutcomeFallback means the unoptimized path completed the
	// invocation after an optimization-layer fault.
	OutcomeFallback Outcome = "fallback"
)

// Record captures one invocation for monitoring. Records are folded
// into aggregate stats and optionally handed to a sink; they are not
// retained individually.
type Record struct {
	ID         string        `json:"id"`
	Capability string        `json:"capability"`
	Profile    string        `json:"profile"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	CacheHit   bool          `json:"cache_hit"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// Sink receives execution records, e.g. for persisted analytics.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// Stats is the aggregate view of coordinator activity.
type Stats struct {
	TotalExecutions int64         `json:"total_executions"`
	Failures        int64         `json:"failures"`
	Fallbacks       int64         `json:"fallbacks"`
	CacheHits       int64         `json:"cache_hits"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	AvgDuration     time.Duration `json:"avg_duration"`
}

type statsAccumulator struct {
	mu            sync.Mutex
	total         int64
	failures      int64
	fallbacks     int64
	cacheHits     int64
	totalDuration time.Duration
}

func (a *statsAccumulator) record(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.totalDuration += rec.Duration
	if rec.CacheHit {
		a.cacheHits++
	}
	switch rec.Outcome {
	case OutcomeFailure:
		a.failures++
	case OutcomeFallback:
		a.fallbacks++
	}
}

func (a *statsAccumulator) snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{
		TotalExecutions: a.total,
		Failures:        a.failures,
		Fallbacks:       a.fallbacks,
		CacheHits:       a.cacheHits,
	}
	if a.total > 0 {
		s.CacheHitRate = float64(a.cacheHits) / float64(a.total)
		s.AvgDuration = a.totalDuration / time.Duration(a.total)
	}
	return s
}

func (a *statsAccumulator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = 0
	a.failures = 0
	a.fallbacks = 0
	a.cacheHits = 0
	a.totalDuration = 0
}
