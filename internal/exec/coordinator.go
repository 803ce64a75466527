// Package exec coordinates capability invocations through the
// resolution caches, batching hook passes and throttling cancellation
// checks. The optimization layer is a performance transparency: the
// observable outcome of Invoke is identical whether the cached path or
// the fallback path ran.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arclight-ai/capd/internal/registry"
	"github.com/arclight-ai/capd/internal/resolve"
)

// Extension points invoked around every dispatch. The coordinator runs
// at most one pass per point per invocation.
const (
	PointBeforeExecute = "tool_execute_before"
	PointAfterExecute  = "tool_execute_after"
)

// Request is one capability invocation.
type Request struct {
	Capability string
	Profile    string
	Args       map[string]any
}

// Response carries the capability's result. Output and the returned
// error are the semantic outcome; CacheHit, Fallback and Duration are
// observational metadata and never differ in meaning between paths.
type Response struct {
	Capability string        `json:"capability"`
	Output     any           `json:"output"`
	CacheHit   bool          `json:"cache_hit"`
	Fallback   bool          `json:"fallback"`
	Duration   time.Duration `json:"duration"`
}

// Coordinator wraps capability invocation with cached resolution,
// single batched before/after hook passes, and a throttled cancellation
// check. Any fault inside the optimization layer recovers locally by
// re-deriving everything from the backing source.
type Coordinator struct {
	tools *resolve.ToolResolver
	exts  *resolve.ExtensionResolver
	sink  Sink
	stats statsAccumulator

	// forceFallback routes every invocation through the direct path;
	// used to check path equivalence.
	forceFallback bool
}

// NewCoordinator creates a coordinator over the two resolution caches.
// sink may be nil.
func NewCoordinator(tools *resolve.ToolResolver, exts *resolve.ExtensionResolver, sink Sink) *Coordinator {
	return &Coordinator{tools: tools, exts: exts, sink: sink}
}

// Invoke resolves and dispatches one capability. Callers see only three
// outcomes: the capability's own result, the capability's own error
// (including cancellation observed before dispatch), or
// registry.ErrNotFound. Optimization-layer faults never surface; they
// downgrade the invocation to the uncached path.
func (c *Coordinator) Invoke(ctx context.Context, req Request) (Response, error) {
	started := time.Now()
	rec := Record{
		ID:         uuid.NewString(),
		Capability: req.Capability,
		Profile:    req.Profile,
		StartedAt:  started,
	}

	var resp Response
	var err error
	if c.forceFallback {
		resp, err = c.invokeDirect(ctx, req)
		resp.Fallback = true
	} else {
		var optFault error
		resp, err, optFault = c.invokeOptimized(ctx, req)
		if optFault != nil {
			slog.Warn("optimized execution failed, falling back to direct path",
				"capability", req.Capability, "profile", req.Profile, "error", optFault)
			resp, err = c.invokeDirect(ctx, req)
			resp.Fallback = true
		}
	}

	resp.Capability = req.Capability
	resp.Duration = time.Since(started)

	rec.Duration = resp.Duration
	rec.CacheHit = resp.CacheHit
	switch {
	case resp.Fallback:
		rec.Outcome = OutcomeFallback
	case err != nil:
		rec.Outcome = OutcomeFailure
	default:
		rec.Outcome = OutcomeSuccess
	}
	if err != nil {
		rec.Error = err.Error()
	}
	c.stats.record(rec)
	if c.sink != nil {
		if sinkErr := c.sink.Record(ctx, rec); sinkErr != nil {
			slog.Warn("execution record sink failed", "error", sinkErr)
		}
	}

	return resp, err
}

// invokeOptimized runs the cached path. The third return value is an
// optimization-layer fault: non-nil means the caller must retry on the
// direct path. NotFound and capability errors are final, not faults.
func (c *Coordinator) invokeOptimized(ctx context.Context, req Request) (resp Response, err error, fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("optimization layer panic: %v", r)
		}
	}()

	handle, cacheHit, rerr := c.tools.ResolveWithMeta(ctx, req.Capability, req.Profile)
	if rerr != nil {
		if isCapabilitySurfaceError(rerr) {
			return Response{}, rerr, nil
		}
		return Response{}, nil, fmt.Errorf("tool resolution: %w", rerr)
	}
	resp.CacheHit = cacheHit

	// Hook faults stay retryable (the direct path degrades to a
	// hookless run), but a cancellation is final here too.
	hooksBefore, rerr := c.exts.Resolve(ctx, PointBeforeExecute, req.Profile)
	if rerr != nil {
		if isCancellation(rerr) {
			return Response{}, rerr, nil
		}
		return Response{}, nil, fmt.Errorf("hook resolution (%s): %w", PointBeforeExecute, rerr)
	}
	hooksAfter, rerr := c.exts.Resolve(ctx, PointAfterExecute, req.Profile)
	if rerr != nil {
		if isCancellation(rerr) {
			return Response{}, rerr, nil
		}
		return Response{}, nil, fmt.Errorf("hook resolution (%s): %w", PointAfterExecute, rerr)
	}

	out, err := c.dispatch(ctx, handle, hooksBefore, hooksAfter, req)
	if err != nil {
		return resp, err, nil
	}
	resp.Output = out
	return resp, nil, nil
}

// invokeDirect re-derives everything from the backing source, bypassing
// both caches. It fails only for capability-intrinsic reasons.
func (c *Coordinator) invokeDirect(ctx context.Context, req Request) (Response, error) {
	handle, err := c.tools.ResolveDirect(ctx, req.Capability, req.Profile)
	if err != nil {
		return Response{}, err
	}

	// Hook discovery failing on the direct path must not block the
	// invocation; run with an empty chain instead.
	hooksBefore, err := c.exts.ResolveDirect(ctx, PointBeforeExecute, req.Profile)
	if err != nil {
		slog.Warn("direct hook resolution failed, continuing without hooks",
			"point", PointBeforeExecute, "error", err)
		hooksBefore = nil
	}
	hooksAfter, err := c.exts.ResolveDirect(ctx, PointAfterExecute, req.Profile)
	if err != nil {
		slog.Warn("direct hook resolution failed, continuing without hooks",
			"point", PointAfterExecute, "error", err)
		hooksAfter = nil
	}

	out, err := c.dispatch(ctx, handle, hooksBefore, hooksAfter, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Output: out}, nil
}

// dispatch performs the single before-hook pass, the throttled
// cancellation check, the capability call, and the single after-hook
// pass. Both invocation paths funnel through here, which is what makes
// their outcomes equivalent.
func (c *Coordinator) dispatch(ctx context.Context, handle registry.Handle, before, after []registry.Handle, req Request) (any, error) {
	c.runHooks(ctx, before, map[string]any{
		"phase":      "before",
		"capability": req.Capability,
		"args":       req.Args,
	})

	// The one cooperative cancellation point per invocation: a
	// cancellation observed here aborts before any side effects.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := handle.Run(ctx, req.Args)
	if err != nil {
		// The capability's own failure propagates unchanged.
		return nil, err
	}

	c.runHooks(ctx, after, map[string]any{
		"phase":      "after",
		"capability": req.Capability,
		"args":       req.Args,
		"result":     out,
	})
	return out, nil
}

// runHooks executes one batched hook pass. A failing hook is logged and
// skipped; hooks never fail the invocation.
func (c *Coordinator) runHooks(ctx context.Context, hooks []registry.Handle, args map[string]any) {
	for _, h := range hooks {
		if _, err := h.Run(ctx, args); err != nil {
			slog.Warn("extension hook failed",
				"extension", h.Definition.Name,
				"point", h.Definition.Point,
				"error", err)
		}
	}
}

// isCapabilitySurfaceError reports whether err belongs to the caller's
// error surface rather than the optimization layer's. Cancellation is
// the caller's own doing; retrying it on the direct path would waste a
// full re-resolution and mislabel the record as a fallback.
func isCapabilitySurfaceError(err error) bool {
	return errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, registry.ErrNoRunner) ||
		isCancellation(err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stats returns the aggregate execution counters.
func (c *Coordinator) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes the aggregate execution counters.
func (c *Coordinator) ResetStats() {
	c.stats.reset()
}
