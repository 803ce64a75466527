package monitor

import (
	"runtime"
	"time"

	"github.com/arclight-ai/capd/internal/cache"
	"github.com/arclight-ai/capd/internal/exec"
)

// ResourceSample is a point-in-time view of process resource usage.
// Memory percent is heap allocation over memory obtained from the OS;
// the GC CPU fraction stands in for a CPU gauge since the process has
// no cheap in-process view of host CPU.
type ResourceSample struct {
	AllocBytes    uint64  `json:"alloc_bytes"`
	SysBytes      uint64  `json:"sys_bytes"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	NumGC         uint32  `json:"num_gc"`
}

// Sample combines resource usage with a snapshot of cache and execution
// counters. Samples are copies; the monitor never holds live references
// into the caches.
type Sample struct {
	Timestamp time.Time        `json:"timestamp"`
	Resource  ResourceSample   `json:"resource"`
	Caches    cache.LayerStats `json:"caches"`
	Exec      exec.Stats       `json:"exec"`
}

// collectResource reads the runtime's memory and scheduler gauges.
func collectResource() ResourceSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rs := ResourceSample{
		AllocBytes:    ms.Alloc,
		SysBytes:      ms.Sys,
		Goroutines:    runtime.NumGoroutine(),
		GCCPUFraction: ms.GCCPUFraction,
		NumGC:         ms.NumGC,
	}
	if ms.Sys > 0 {
		rs.MemoryPercent = float64(ms.Alloc) / float64(ms.Sys) * 100
	}
	return rs
}
