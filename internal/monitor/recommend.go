package monitor

import (
	"fmt"
	"time"
)

// Thresholds parameterize recommendation rules. All values are
// configuration; zero fields take the documented defaults.
type Thresholds struct {
	// LowHitRate is the hit-rate floor below which growing the cache
	// or its TTL is suggested. Default 0.5.
	LowHitRate float64
	// HighHitRate marks a well-tuned cache. Default 0.9.
	HighHitRate float64
	// MemWarnPercent is the memory ceiling that triggers a growth
	// warning. Default 70.
	MemWarnPercent float64
	// MemCriticalPercent triggers the cache-reduction recommendation.
	// Default 85.
	MemCriticalPercent float64
	// SlowExecution is the average invocation duration considered
	// slow. Default 2s.
	SlowExecution time.Duration
	// MinLookups is how many cache lookups must have happened before
	// hit-rate rules fire. Default 10.
	MinLookups int64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.LowHitRate <= 0 {
		t.LowHitRate = 0.5
	}
	if t.HighHitRate <= 0 {
		t.HighHitRate = 0.9
	}
	if t.MemWarnPercent <= 0 {
		t.MemWarnPercent = 70
	}
	if t.MemCriticalPercent <= 0 {
		t.MemCriticalPercent = 85
	}
	if t.SlowExecution <= 0 {
		t.SlowExecution = 2 * time.Second
	}
	if t.MinLookups <= 0 {
		t.MinLookups = 10
	}
	return t
}

// recommendations derives human-readable advice from one sample.
func (t Thresholds) recommendations(s Sample) []string {
	var recs []string

	switch {
	case s.Resource.MemoryPercent > t.MemCriticalPercent:
		recs = append(recs, fmt.Sprintf(
			"high memory usage (%.1f%%) - reduce cache sizes or clear caches",
			s.Resource.MemoryPercent))
	case s.Resource.MemoryPercent > t.MemWarnPercent:
		recs = append(recs, fmt.Sprintf(
			"moderate memory usage (%.1f%%) - monitor memory growth",
			s.Resource.MemoryPercent))
	}

	if lookups := s.Caches.Tool.Hits + s.Caches.Tool.Misses; lookups >= t.MinLookups {
		switch {
		case s.Caches.Tool.HitRate < t.LowHitRate:
			recs = append(recs, fmt.Sprintf(
				"low tool cache hit rate (%.1f%%) - increase cache size or TTL",
				s.Caches.Tool.HitRate*100))
		case s.Caches.Tool.HitRate > t.HighHitRate:
			recs = append(recs, fmt.Sprintf(
				"excellent tool cache hit rate (%.1f%%) - system is well optimized",
				s.Caches.Tool.HitRate*100))
		}
	}

	if lookups := s.Caches.Extension.Hits + s.Caches.Extension.Misses; lookups >= t.MinLookups {
		if s.Caches.Extension.HitRate < t.LowHitRate {
			recs = append(recs, fmt.Sprintf(
				"low extension cache hit rate (%.1f%%) - increase cache size or TTL",
				s.Caches.Extension.HitRate*100))
		}
	}

	if s.Exec.TotalExecutions > 0 && s.Exec.AvgDuration > t.SlowExecution {
		recs = append(recs, fmt.Sprintf(
			"slow capability execution (avg %s) - review capability implementations",
			s.Exec.AvgDuration.Round(time.Millisecond)))
	}

	if s.Exec.Fallbacks > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d invocations took the uncached fallback path - check logs for optimization faults",
			s.Exec.Fallbacks))
	}

	return recs
}
