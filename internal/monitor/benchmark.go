package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arclight-ai/capd/internal/exec"
	"github.com/arclight-ai/capd/internal/registry"
)

// ToolResolver is the slice of the tool cache the benchmark exercises.
type ToolResolver interface {
	Resolve(ctx context.Context, name, profile string) (registry.Handle, error)
}

// ExtensionResolver is the slice of the extension cache the benchmark
// exercises.
type ExtensionResolver interface {
	Resolve(ctx context.Context, point, profile string) ([]registry.Handle, error)
}

// BenchmarkConfig fixes the synthetic workload's structure and the
// rating scale. The measured operations are always the same for a given
// config; only their timing varies.
type BenchmarkConfig struct {
	// Operations per phase. Default 100.
	Operations int
	// Capabilities are the identifiers resolved in the tool phase.
	// Default: a single synthetic name that misses.
	Capabilities []string
	// Profile the workload resolves under. Empty means default.
	Profile string
	// Timeout bounds the whole run. Default 5s.
	Timeout time.Duration

	// Rating scale: total duration under each bound earns the rating.
	ExcellentUnder time.Duration
	GoodUnder      time.Duration
	FairUnder      time.Duration
}

func (c BenchmarkConfig) withDefaults() BenchmarkConfig {
	if c.Operations <= 0 {
		c.Operations = 100
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = []string{"benchmark_probe"}
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ExcellentUnder <= 0 {
		c.ExcellentUnder = 10 * time.Millisecond
	}
	if c.GoodUnder <= 0 {
		c.GoodUnder = 50 * time.Millisecond
	}
	if c.FairUnder <= 0 {
		c.FairUnder = 100 * time.Millisecond
	}
	return c
}

// BenchmarkReport is the timed outcome of one benchmark run.
type BenchmarkReport struct {
	Operations     int           `json:"operations"`
	ToolPhase      time.Duration `json:"tool_phase"`
	ExtensionPhase time.Duration `json:"extension_phase"`
	Total          time.Duration `json:"total"`
	OpsPerSecond   float64       `json:"ops_per_second"`
	Rating         string        `json:"rating"`
}

// Benchmark runs a fixed synthetic resolution workload against the live
// caches and rates the result.
type Benchmark struct {
	cfg   BenchmarkConfig
	tools ToolResolver
	exts  ExtensionResolver
}

// NewBenchmark creates a benchmark over the two resolvers.
func NewBenchmark(cfg BenchmarkConfig, tools ToolResolver, exts ExtensionResolver) *Benchmark {
	return &Benchmark{cfg: cfg.withDefaults(), tools: tools, exts: exts}
}

// Run executes the workload: one phase of tool resolutions cycling the
// configured identifiers, one phase of extension-point resolutions.
// Resolution misses are part of the workload, not failures; only
// cancellation aborts the run.
func (b *Benchmark) Run(ctx context.Context) (BenchmarkReport, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	report := BenchmarkReport{Operations: b.cfg.Operations}

	start := time.Now()
	for i := 0; i < b.cfg.Operations; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := b.cfg.Capabilities[i%len(b.cfg.Capabilities)]
		if _, err := b.tools.Resolve(ctx, name, b.cfg.Profile); err != nil && !errors.Is(err, registry.ErrNotFound) {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Warn("benchmark tool resolution failed", "capability", name, "error", err)
		}
	}
	report.ToolPhase = time.Since(start)

	points := []string{exec.PointBeforeExecute, exec.PointAfterExecute}
	start = time.Now()
	for i := 0; i < b.cfg.Operations; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := b.exts.Resolve(ctx, points[i%len(points)], b.cfg.Profile); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Warn("benchmark extension resolution failed", "point", points[i%len(points)], "error", err)
		}
	}
	report.ExtensionPhase = time.Since(start)

	report.Total = report.ToolPhase + report.ExtensionPhase
	if secs := report.Total.Seconds(); secs > 0 {
		report.OpsPerSecond = float64(2*b.cfg.Operations) / secs
	}
	report.Rating = b.rating(report.Total)
	return report, nil
}

func (b *Benchmark) rating(total time.Duration) string {
	switch {
	case total < b.cfg.ExcellentUnder:
		return "excellent"
	case total < b.cfg.GoodUnder:
		return "good"
	case total < b.cfg.FairUnder:
		return "fair"
	default:
		return "poor"
	}
}
