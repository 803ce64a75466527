// Package control is the administrative command surface over the
// resolution caches, the coordinator, and the monitor. It contains no
// cache logic of its own: every handler works through the public
// contracts of the components it commands.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arclight-ai/capd/internal/cache"
	"github.com/arclight-ai/capd/internal/exec"
	"github.com/arclight-ai/capd/internal/monitor"
	"github.com/arclight-ai/capd/internal/resolve"
)

var (
	// ErrUnsupportedAction rejects unknown action names. Unknown
	// actions never fall through to a default handler.
	ErrUnsupportedAction = errors.New("control: unsupported action")

	// ErrInvalidParams rejects malformed or out-of-range parameters
	// before any state changes.
	ErrInvalidParams = errors.New("control: invalid parameters")
)

// Outcome classifies what a control operation did.
type Outcome string

const (
	// OutcomeApplied means the operation changed or produced something.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means there was nothing to do; reported, never silent.
	OutcomeNoop Outcome = "noop"
	// OutcomeFailed means the operation could not complete.
	OutcomeFailed Outcome = "failed"
)

// Request is one administrative command.
type Request struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Result describes what a control operation changed.
type Result struct {
	Action  string  `json:"action"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
	Data    any     `json:"data,omitempty"`
}

// Config bounds the surface's runtime adjustments.
type Config struct {
	// DefaultInterval is used by start_monitoring when the request
	// carries no interval.
	DefaultInterval time.Duration
	// ToolMaxBound and ExtensionMaxBound cap how far optimize may
	// grow each cache.
	ToolMaxBound      int
	ExtensionMaxBound int
	// GrowBelowHitRate is the hit-rate floor under which optimize
	// grows a full cache. Default 0.5.
	GrowBelowHitRate float64
}

// Surface dispatches administrative actions.
type Surface struct {
	cfg   Config
	tools *resolve.ToolResolver
	exts  *resolve.ExtensionResolver
	coord *exec.Coordinator
	mon   *monitor.Monitor
	bench *monitor.Benchmark
}

// NewSurface creates the control surface over the injected components.
func NewSurface(cfg Config, tools *resolve.ToolResolver, exts *resolve.ExtensionResolver, coord *exec.Coordinator, mon *monitor.Monitor, bench *monitor.Benchmark) *Surface {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 5 * time.Second
	}
	if cfg.GrowBelowHitRate <= 0 {
		cfg.GrowBelowHitRate = 0.5
	}
	return &Surface{cfg: cfg, tools: tools, exts: exts, coord: coord, mon: mon, bench: bench}
}

type handlerFunc func(s *Surface, ctx context.Context, params json.RawMessage) (Result, error)

var handlers = map[string]handlerFunc{
	"status":           (*Surface).handleStatus,
	"start_monitoring": (*Surface).handleStartMonitoring,
	"stop_monitoring":  (*Surface).handleStopMonitoring,
	"clear_caches":     (*Surface).handleClearCaches,
	"optimize":         (*Surface).handleOptimize,
	"benchmark":        (*Surface).handleBenchmark,
}

// Actions returns the supported action names.
func Actions() []string {
	return []string{"status", "start_monitoring", "stop_monitoring", "clear_caches", "optimize", "benchmark"}
}

// Dispatch runs one action. The returned error is non-nil only for
// request-level rejections (unsupported action, invalid parameters);
// operational failures are reported inside the Result.
func (s *Surface) Dispatch(ctx context.Context, req Request) (Result, error) {
	h, ok := handlers[req.Action]
	if !ok {
		return Result{
			Action:  req.Action,
			Outcome: OutcomeFailed,
			Detail:  fmt.Sprintf("unsupported action %q", req.Action),
		}, fmt.Errorf("%w: %s", ErrUnsupportedAction, req.Action)
	}
	return h(s, ctx, req.Params)
}

// statusReport is the data payload of the status action.
type statusReport struct {
	Caches  cache.LayerStats `json:"caches"`
	Exec    exec.Stats       `json:"exec"`
	Monitor monitor.Summary  `json:"monitor"`
}

func (s *Surface) handleStatus(_ context.Context, _ json.RawMessage) (Result, error) {
	report := statusReport{
		Caches: cache.LayerStats{
			Tool:      s.tools.Stats(),
			Extension: s.exts.Stats(),
		},
		Exec:    s.coord.Stats(),
		Monitor: s.mon.Summary(),
	}
	return Result{
		Action:  "status",
		Outcome: OutcomeApplied,
		Detail:  "status collected",
		Data:    report,
	}, nil
}

func (s *Surface) handleStartMonitoring(_ context.Context, params json.RawMessage) (Result, error) {
	interval := s.cfg.DefaultInterval
	if len(params) > 0 {
		var p struct {
			IntervalSeconds *float64 `json:"interval_seconds"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return Result{Action: "start_monitoring", Outcome: OutcomeFailed, Detail: "malformed parameters"},
				fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if p.IntervalSeconds != nil {
			if *p.IntervalSeconds <= 0 {
				return Result{Action: "start_monitoring", Outcome: OutcomeFailed, Detail: "interval_seconds must be positive"},
					fmt.Errorf("%w: interval_seconds %v", ErrInvalidParams, *p.IntervalSeconds)
			}
			interval = time.Duration(*p.IntervalSeconds * float64(time.Second))
		}
	}

	switch err := s.mon.Start(interval); {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		return Result{Action: "start_monitoring", Outcome: OutcomeNoop, Detail: "monitoring already running"}, nil
	case err != nil:
		return Result{Action: "start_monitoring", Outcome: OutcomeFailed, Detail: err.Error()}, nil
	}
	return Result{
		Action:  "start_monitoring",
		Outcome: OutcomeApplied,
		Detail:  fmt.Sprintf("monitoring started, sampling every %s", interval),
		Data:    map[string]any{"interval_seconds": interval.Seconds()},
	}, nil
}

func (s *Surface) handleStopMonitoring(_ context.Context, _ json.RawMessage) (Result, error) {
	switch err := s.mon.Stop(); {
	case errors.Is(err, monitor.ErrNotRunning):
		return Result{Action: "stop_monitoring", Outcome: OutcomeNoop, Detail: "monitoring already stopped"}, nil
	case err != nil:
		return Result{Action: "stop_monitoring", Outcome: OutcomeFailed, Detail: err.Error()}, nil
	}
	return Result{Action: "stop_monitoring", Outcome: OutcomeApplied, Detail: "monitoring stopped, history retained"}, nil
}

func (s *Surface) handleClearCaches(_ context.Context, _ json.RawMessage) (Result, error) {
	toolEntries := s.tools.Len()
	extEntries := s.exts.Len()

	s.tools.Clear()
	s.exts.Clear()
	s.coord.ResetStats()
	s.mon.ClearHistory()

	data := map[string]any{
		"tool_entries_cleared":      toolEntries,
		"extension_entries_cleared": extEntries,
	}
	if toolEntries == 0 && extEntries == 0 {
		return Result{Action: "clear_caches", Outcome: OutcomeNoop, Detail: "caches already empty", Data: data}, nil
	}
	return Result{
		Action:  "clear_caches",
		Outcome: OutcomeApplied,
		Detail:  fmt.Sprintf("cleared %d tool and %d extension entries, counters reset", toolEntries, extEntries),
		Data:    data,
	}, nil
}

func (s *Surface) handleOptimize(_ context.Context, _ json.RawMessage) (Result, error) {
	var adjustments []string

	if swept := s.tools.SweepExpired() + s.exts.SweepExpired(); swept > 0 {
		adjustments = append(adjustments, fmt.Sprintf("swept %d expired entries", swept))
	}
	if adj := s.growIfStarved("tool cache", s.tools.Stats(), s.cfg.ToolMaxBound, s.tools.Resize); adj != "" {
		adjustments = append(adjustments, adj)
	}
	if adj := s.growIfStarved("extension cache", s.exts.Stats(), s.cfg.ExtensionMaxBound, s.exts.Resize); adj != "" {
		adjustments = append(adjustments, adj)
	}

	data := map[string]any{
		"adjustments": adjustments,
		"caches": cache.LayerStats{
			Tool:      s.tools.Stats(),
			Extension: s.exts.Stats(),
		},
	}
	if len(adjustments) == 0 {
		return Result{Action: "optimize", Outcome: OutcomeNoop, Detail: "no adjustments needed", Data: data}, nil
	}
	return Result{
		Action:  "optimize",
		Outcome: OutcomeApplied,
		Detail:  fmt.Sprintf("applied %d adjustments", len(adjustments)),
		Data:    data,
	}, nil
}

// growIfStarved doubles a full, low-hit-rate cache up to its configured
// bound. Growth is the only adjustment safe to apply unattended:
// shrinking can evict hot entries.
func (s *Surface) growIfStarved(name string, st cache.Stats, bound int, resize func(int)) string {
	if bound <= 0 || st.Capacity >= bound {
		return ""
	}
	lookups := st.Hits + st.Misses
	if lookups == 0 || st.HitRate >= s.cfg.GrowBelowHitRate || st.Entries < st.Capacity {
		return ""
	}
	next := st.Capacity * 2
	if next > bound {
		next = bound
	}
	resize(next)
	return fmt.Sprintf("grew %s from %d to %d entries (hit rate %.1f%%)", name, st.Capacity, next, st.HitRate*100)
}

func (s *Surface) handleBenchmark(ctx context.Context, _ json.RawMessage) (Result, error) {
	report, err := s.bench.Run(ctx)
	if err != nil {
		return Result{Action: "benchmark", Outcome: OutcomeFailed, Detail: err.Error()}, nil
	}
	return Result{
		Action:  "benchmark",
		Outcome: OutcomeApplied,
		Detail:  fmt.Sprintf("rating %s (%d ops per phase in %s)", report.Rating, report.Operations, report.Total),
		Data:    report,
	}, nil
}
