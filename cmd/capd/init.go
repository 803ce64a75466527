package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arclight-ai/capd/internal/registry"
)

func cmdInit() error {
	cfg, err := loadEnvConfig()
	if err != nil {
		return err
	}

	// Create default config if not exists
	if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfg.ConfigFile), 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		defaultCfg := `# capd configuration
registry:
  root: capabilities

caches:
  tool:
    max_entries: 100
    ttl_sec: 300
    max_entries_bound: 1000
  extension:
    max_entries: 50
    ttl_sec: 300
    max_entries_bound: 500

monitor:
  interval_sec: 5
  history_size: 100

benchmark:
  operations: 100
  timeout_sec: 5

analytics:
  enabled: false
  # path: capd-analytics.db
`
		if err := os.WriteFile(cfg.ConfigFile, []byte(defaultCfg), 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Config file created: %s\n", cfg.ConfigFile)
	} else {
		fmt.Printf("Config file already exists: %s\n", cfg.ConfigFile)
	}

	// Create the registry skeleton for the default profile.
	root := cfg.RegistryRoot
	if root == "" {
		root = "capabilities"
	}
	for _, dir := range []string{
		filepath.Join(root, registry.DefaultProfile, "tools"),
		filepath.Join(root, registry.DefaultProfile, "extensions"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	fmt.Printf("Registry created: %s\n", root)
	return nil
}
