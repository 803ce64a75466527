package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/arclight-ai/capd/internal/analytics"
	"github.com/arclight-ai/capd/internal/config"
	"github.com/arclight-ai/capd/internal/control"
	"github.com/arclight-ai/capd/internal/exec"
	"github.com/arclight-ai/capd/internal/monitor"
	"github.com/arclight-ai/capd/internal/registry"
	"github.com/arclight-ai/capd/internal/resolve"
)

func cmdControlServer() error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadEnvConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.mon.Start(rt.file.Monitor.Interval()); err != nil {
		return err
	}
	defer func() { _ = rt.mon.Stop() }()

	srv := control.NewServer(rt.surface, os.Stdout, logger)
	logger.Info("control server listening on stdio",
		"registry", rt.file.Registry.Root, "actions", control.Actions())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, os.Stdin)
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runtime is the assembled component graph behind every subcommand.
type runtime struct {
	file    *config.File
	runners *registry.Runners
	tools   *resolve.ToolResolver
	exts    *resolve.ExtensionResolver
	coord   *exec.Coordinator
	mon     *monitor.Monitor
	bench   *monitor.Benchmark
	surface *control.Surface
	store   *analytics.Store // nil when analytics is disabled
}

// buildRuntime wires the registry, resolvers, coordinator, monitor,
// benchmark, and control surface from file config plus env overrides.
func buildRuntime(cfg *Config) (*runtime, error) {
	file, err := loadFileConfig(cfg)
	if err != nil {
		return nil, err
	}

	source := registry.NewDirSource(file.Registry.Root)
	runners := registry.NewRunners()
	registerBuiltinRunners(runners)

	tools := resolve.NewToolResolver(source, runners,
		file.Caches.Tool.MaxEntries, file.Caches.Tool.TTL())
	exts := resolve.NewExtensionResolver(source, runners,
		file.Caches.Extension.MaxEntries, file.Caches.Extension.TTL())

	var store *analytics.Store
	var sink exec.Sink
	if file.Analytics.Enabled {
		store, err = analytics.Open(file.Analytics.Path)
		if err != nil {
			return nil, err
		}
		sink = store
	}

	coord := exec.NewCoordinator(tools, exts, sink)
	mon := monitor.New(monitor.Config{
		HistorySize: file.Monitor.HistorySize,
		Thresholds:  file.Monitor.Thresholds.ToMonitor(),
	}, tools, exts, coord)
	bench := monitor.NewBenchmark(file.Benchmark.ToMonitor(), tools, exts)

	surface := control.NewSurface(control.Config{
		DefaultInterval:   file.Monitor.Interval(),
		ToolMaxBound:      file.Caches.Tool.MaxEntriesBound,
		ExtensionMaxBound: file.Caches.Extension.MaxEntriesBound,
		GrowBelowHitRate:  file.Monitor.Thresholds.LowHitRate,
	}, tools, exts, coord, mon, bench)

	return &runtime{
		file:    file,
		runners: runners,
		tools:   tools,
		exts:    exts,
		coord:   coord,
		mon:     mon,
		bench:   bench,
		surface: surface,
		store:   store,
	}, nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

// loadFileConfig reads capd.yaml when present, otherwise starts from
// defaults, then applies environment overrides.
func loadFileConfig(cfg *Config) (*config.File, error) {
	file := config.Default()
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		file, err = config.LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded config", "file", cfg.ConfigFile)
	}
	if cfg.RegistryRoot != "" {
		file.Registry.Root = cfg.RegistryRoot
	}
	if cfg.AnalyticsDSN != "" {
		file.Analytics.Enabled = true
		file.Analytics.Path = cfg.AnalyticsDSN
	}
	return file, nil
}

// registerBuiltinRunners installs the runners available to definitions
// out of the box. Embedding programs register their own on top.
func registerBuiltinRunners(r *registry.Runners) {
	_ = r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	})
	_ = r.Register("noop", func(context.Context, map[string]any) (any, error) {
		return nil, nil
	})
}
