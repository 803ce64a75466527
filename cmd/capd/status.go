package main

import (
	"context"
	"fmt"
	"time"
)

func cmdStatus() error {
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

	fmt.Printf("capd status (registry: %s)\n", rt.file.Registry.Root)
	fmt.Printf("  Tool cache:       %d/%d entries, ttl %s\n",
		rt.tools.Len(), rt.tools.Cap(), rt.file.Caches.Tool.TTL())
	fmt.Printf("  Extension cache:  %d/%d entries, ttl %s\n",
		rt.exts.Len(), rt.exts.Cap(), rt.file.Caches.Extension.TTL())
	fmt.Printf("  Monitor interval: %s (history %d)\n",
		rt.file.Monitor.Interval(), rt.file.Monitor.HistorySize)

	if rt.store == nil {
		fmt.Println("  Analytics:        disabled")
		return nil
	}

	fmt.Printf("  Analytics:        %s\n", rt.file.Analytics.Path)
	since := time.Now().Add(-24 * time.Hour)
	top, err := rt.store.TopCapabilities(ctx, since, 10)
	if err != nil {
		return fmt.Errorf("list top capabilities: %w", err)
	}
	if len(top) == 0 {
		fmt.Println("  No executions recorded in the last 24h")
		return nil
	}
	fmt.Println("  Top capabilities (24h):")
	for _, uc := range top {
		fmt.Printf("    %-30s %d\n", uc.Capability, uc.Count)
	}
	return nil
}
