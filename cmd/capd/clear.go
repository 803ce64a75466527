package main

import (
	"context"
	"fmt"
)

// cmdClear resets the persisted execution history. The in-process
// caches of a running daemon are cleared over its control stream with
// the clear_caches action, not from here.
func cmdClear() error {
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

	if rt.store == nil {
		fmt.Println("Analytics disabled, nothing to clear")
		return nil
	}
	n, err := rt.store.Reset(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("Execution history already empty")
		return nil
	}
	fmt.Printf("Cleared %d execution records\n", n)
	return nil
}
