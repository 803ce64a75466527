package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ConfigFile   string     // path to capd.yaml
	RegistryRoot string     // overrides registry.root from the file
	AnalyticsDSN string     // overrides analytics.path from the file
	LogLevel     slog.Level // slog level
}

// defaultDataPath returns ~/.capd/<filename>, falling back to a
// CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".capd", filename)
}

func loadEnvConfig() (*Config, error) {
	cfg := &Config{
		ConfigFile:   envOr("CAPD_CONFIG", defaultDataPath("capd.yaml")),
		RegistryRoot: envOr("CAPD_REGISTRY_ROOT", ""),
		AnalyticsDSN: envOr("CAPD_ANALYTICS_DSN", ""),
		LogLevel:     parseLogLevel(envOr("CAPD_LOG_LEVEL", "info")),
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
