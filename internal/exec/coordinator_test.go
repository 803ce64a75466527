package exec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arclight-ai/capd/internal/registry"
	"github.com/arclight-ai/capd/internal/resolve"
)

// testSource serves a fixed set of definitions and can be told to fail
// extension listing, which is how optimization-layer faults are
// provoked below.
type testSource struct {
	mu        sync.Mutex
	tools     map[string]registry.Definition
	exts      map[string][]registry.Definition
	extErr    error
	listCalls int
}

func newTestSource() *testSource {
	return &testSource{
		tools: make(map[string]registry.Definition),
		exts:  make(map[string][]registry.Definition),
	}
}

func (s *testSource) addTool(name, runner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[name] = registry.Definition{
		Name: name, Runner: runner, Kind: registry.KindTool,
		Profile: registry.DefaultProfile,
		Source:  "default/tools/" + name + ".yaml",
	}
}

func (s *testSource) addExtension(point, name, runner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exts[point] = append(s.exts[point], registry.Definition{
		Name: name, Runner: runner, Kind: registry.KindExtension,
		Profile: registry.DefaultProfile, Point: point,
		Source: "default/extensions/" + point + "/" + name + ".yaml",
	})
}

func (s *testSource) setExtErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extErr = err
}

func (s *testSource) ListTools(ctx context.Context, _ registry.Scope, name string) ([]registry.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if def, ok := s.tools[name]; ok {
		return []registry.Definition{def}, nil
	}
	return nil, nil
}

func (s *testSource) listToolCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *testSource) ListExtensions(_ context.Context, _ registry.Scope, point string) ([]registry.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extErr != nil {
		return nil, s.extErr
	}
	return s.exts[point], nil
}

func (s *testSource) ToolSignature(_ registry.Scope, name string) string      { return "sig:" + name }
func (s *testSource) ExtensionSignature(_ registry.Scope, point string) string { return "sig:" + point }

// fixture wires a coordinator over the test source with echo/fail
// runners and counting hooks.
type fixture struct {
	source    *testSource
	coord     *Coordinator
	hookCalls atomic.Int64
	hookArgs  sync.Map // phase -> last args map
}

func newFixture(t *testing.T, sink Sink) *fixture {
	t.Helper()
	f := &fixture{source: newTestSource()}

	runners := registry.NewRunners()
	mustRegister(t, runners, "echo", func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	})
	mustRegister(t, runners, "fail", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("capability exploded")
	})
	mustRegister(t, runners, "hook", func(_ context.Context, args map[string]any) (any, error) {
		f.hookCalls.Add(1)
		if phase, ok := args["phase"].(string); ok {
			f.hookArgs.Store(phase, args)
		}
		return nil, nil
	})
	mustRegister(t, runners, "bad-hook", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("hook exploded")
	})

	tools := resolve.NewToolResolver(f.source, runners, 10, time.Minute)
	exts := resolve.NewExtensionResolver(f.source, runners, 10, time.Minute)
	f.coord = NewCoordinator(tools, exts, sink)
	return f
}

func mustRegister(t *testing.T, r *registry.Runners, name string, fn registry.RunnerFunc) {
	t.Helper()
	if err := r.Register(name, fn); err != nil {
		t.Fatal(err)
	}
}

func TestCoordinator_InvokeSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")
	ctx := context.Background()

	resp, err := f.coord.Invoke(ctx, Request{
		Capability: "search",
		Args:       map[string]any{"q": "caching"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	out, ok := resp.Output.(map[string]any)
	if !ok || out["q"] != "caching" {
		t.Fatalf("Output = %v, want the echoed args", resp.Output)
	}
	if resp.CacheHit {
		t.Fatal("first invocation reported a cache hit")
	}
	if resp.Fallback {
		t.Fatal("success path reported fallback")
	}

	resp, err = f.coord.Invoke(ctx, Request{Capability: "search"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.CacheHit {
		t.Fatal("second invocation should hit the resolution cache")
	}

	st := f.coord.Stats()
	if st.TotalExecutions != 2 || st.CacheHits != 1 {
		t.Fatalf("stats = %+v, want 2 executions with 1 cache hit", st)
	}
}

func TestCoordinator_NotFoundPassesThrough(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.coord.Invoke(context.Background(), Request{Capability: "absent"})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if resp.Fallback {
		t.Fatal("missing capability must not trigger fallback")
	}

	st := f.coord.Stats()
	if st.Failures != 1 || st.Fallbacks != 0 {
		t.Fatalf("stats = %+v, want 1 failure and 0 fallbacks", st)
	}
}

func TestCoordinator_CapabilityErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("broken", "fail")

	_, err := f.coord.Invoke(context.Background(), Request{Capability: "broken"})
	if err == nil || err.Error() != "capability exploded" {
		t.Fatalf("err = %v, want the capability's own error unchanged", err)
	}

	st := f.coord.Stats()
	if st.Failures != 1 || st.Fallbacks != 0 {
		t.Fatalf("stats = %+v, want failure without fallback", st)
	}
}

func TestCoordinator_FallbackOnOptimizationFault(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")

	// Prime the tool cache, then break extension listing: the cached
	// path faults on hook resolution and the direct path completes
	// hookless.
	if _, err := f.coord.Invoke(context.Background(), Request{Capability: "search"}); err != nil {
		t.Fatalf("prime: %v", err)
	}
	f.coord.exts.Clear()
	f.source.setExtErr(errors.New("backing source unavailable"))

	resp, err := f.coord.Invoke(context.Background(), Request{
		Capability: "search",
		Args:       map[string]any{"q": "x"},
	})
	if err != nil {
		t.Fatalf("Invoke during fault: %v", err)
	}
	if !resp.Fallback {
		t.Fatal("expected fallback after optimization-layer fault")
	}
	out, ok := resp.Output.(map[string]any)
	if !ok || out["q"] != "x" {
		t.Fatalf("Output = %v, want the echoed args despite fallback", resp.Output)
	}

	st := f.coord.Stats()
	if st.Fallbacks != 1 {
		t.Fatalf("Fallbacks = %d, want 1", st.Fallbacks)
	}
}

func TestCoordinator_PathEquivalence(t *testing.T) {
	run := func(runner string, force bool) (Response, error) {
		f := newFixture(t, nil)
		f.source.addTool("search", runner)
		f.source.addExtension(PointBeforeExecute, "trace", "hook")
		f.coord.forceFallback = force
		return f.coord.Invoke(context.Background(), Request{
			Capability: "search",
			Args:       map[string]any{"q": "same"},
		})
	}

	// Success case: same output on both paths.
	optimized, optErr := run("echo", false)
	direct, dirErr := run("echo", true)
	if optErr != nil || dirErr != nil {
		t.Fatalf("errors: optimized=%v direct=%v", optErr, dirErr)
	}
	optOut := optimized.Output.(map[string]any)
	dirOut := direct.Output.(map[string]any)
	if optOut["q"] != dirOut["q"] {
		t.Fatalf("output mismatch: optimized=%v direct=%v", optOut, dirOut)
	}
	if !direct.Fallback || optimized.Fallback {
		t.Fatal("fallback flag must reflect the path taken")
	}

	// Capability-intrinsic failure: same error on both paths.
	_, optErr = run("fail", false)
	_, dirErr = run("fail", true)
	if optErr == nil || dirErr == nil || optErr.Error() != dirErr.Error() {
		t.Fatalf("failure mismatch: optimized=%v direct=%v", optErr, dirErr)
	}
}

func TestCoordinator_HookBatching(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")
	f.source.addExtension(PointBeforeExecute, "trace", "hook")
	f.source.addExtension(PointAfterExecute, "audit", "hook")

	if _, err := f.coord.Invoke(context.Background(), Request{Capability: "search"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// Exactly one pass per point: one before call, one after call.
	if got := f.hookCalls.Load(); got != 2 {
		t.Fatalf("hook calls = %d, want 2", got)
	}
	if _, ok := f.hookArgs.Load("before"); !ok {
		t.Fatal("before hook never saw phase=before")
	}
	after, ok := f.hookArgs.Load("after")
	if !ok {
		t.Fatal("after hook never saw phase=after")
	}
	if _, ok := after.(map[string]any)["result"]; !ok {
		t.Fatal("after hook args missing the capability result")
	}
}

func TestCoordinator_HookFailureDoesNotFailInvocation(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")
	f.source.addExtension(PointBeforeExecute, "evil", "bad-hook")

	resp, err := f.coord.Invoke(context.Background(), Request{
		Capability: "search",
		Args:       map[string]any{"q": "x"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Output == nil {
		t.Fatal("capability result lost to a failing hook")
	}
}

func TestCoordinator_CancellationAbortsBeforeDispatch(t *testing.T) {
	f := newFixture(t, nil)
	var ran atomic.Bool
	runners := registry.NewRunners()
	mustRegister(t, runners, "echo", func(_ context.Context, args map[string]any) (any, error) {
		ran.Store(true)
		return args, nil
	})
	f.source.addTool("search", "echo")
	tools := resolve.NewToolResolver(f.source, runners, 10, time.Minute)
	exts := resolve.NewExtensionResolver(f.source, runners, 10, time.Minute)
	coord := NewCoordinator(tools, exts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Invoke(ctx, Request{Capability: "search"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran.Load() {
		t.Fatal("capability ran despite prior cancellation")
	}
}

func TestCoordinator_CancellationDuringResolutionIsFinal(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Discovery observes the cancelled context; the coordinator must
	// not burn a second resolution pass on a caller that already left.
	_, err := f.coord.Invoke(ctx, Request{Capability: "search"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := f.source.listToolCalls(); got != 1 {
		t.Fatalf("ListTools called %d times, want 1 (no direct-path retry)", got)
	}

	st := f.coord.Stats()
	if st.Fallbacks != 0 {
		t.Fatalf("Fallbacks = %d, want 0 for a cancelled invocation", st.Fallbacks)
	}
	if st.Failures != 1 {
		t.Fatalf("Failures = %d, want 1", st.Failures)
	}
}

type captureSink struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (s *captureSink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *captureSink) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

func TestCoordinator_SinkReceivesRecords(t *testing.T) {
	sink := &captureSink{}
	f := newFixture(t, sink)
	f.source.addTool("search", "echo")

	if _, err := f.coord.Invoke(context.Background(), Request{Capability: "search", Profile: "research"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("sink got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Fatal("record without ID")
	}
	if rec.Capability != "search" || rec.Profile != "research" {
		t.Fatalf("record = %+v, want capability/profile preserved", rec)
	}
	if rec.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q, want %q", rec.Outcome, OutcomeSuccess)
	}
}

func TestCoordinator_SinkErrorDoesNotFailInvocation(t *testing.T) {
	sink := &captureSink{err: errors.New("db gone")}
	f := newFixture(t, sink)
	f.source.addTool("search", "echo")

	if _, err := f.coord.Invoke(context.Background(), Request{Capability: "search"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestCoordinator_ResetStats(t *testing.T) {
	f := newFixture(t, nil)
	f.source.addTool("search", "echo")

	if _, err := f.coord.Invoke(context.Background(), Request{Capability: "search"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	f.coord.ResetStats()

	st := f.coord.Stats()
	if st.TotalExecutions != 0 || st.CacheHits != 0 || st.AvgDuration != 0 {
		t.Fatalf("stats = %+v, want zeroed", st)
	}
}
