package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "capd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse subcommand from os.Args
	subcmd := "control-server"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "control-server":
		return cmdControlServer()
	case "status":
		return cmdStatus()
	case "benchmark":
		return cmdBenchmark()
	case "clear":
		return cmdClear()
	case "init":
		return cmdInit()
	default:
		return fmt.Errorf("unknown command: %s\nUsage: capd [control-server|status|benchmark|clear|init]", subcmd)
	}
}
