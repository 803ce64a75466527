package main

import (
	"context"
	"fmt"
)

func cmdBenchmark() error {
	ctx := context.Background()

	cfg, err := loadEnvConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.bench.Run(ctx)
	if err != nil {
		return fmt.Errorf("run benchmark: %w", err)
	}

	fmt.Printf("Benchmark (%d operations per phase)\n", report.Operations)
	fmt.Printf("  Tool phase:      %s\n", report.ToolPhase)
	fmt.Printf("  Extension phase: %s\n", report.ExtensionPhase)
	fmt.Printf("  Total:           %s (%.0f ops/s)\n", report.Total, report.OpsPerSecond)
	fmt.Printf("  Rating:          %s\n", report.Rating)
	return nil
}
