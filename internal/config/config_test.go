package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Registry.Root != "capabilities" {
		t.Fatalf("registry.root = %q, want capabilities", cfg.Registry.Root)
	}
	if cfg.Caches.Tool.MaxEntries != 100 || cfg.Caches.Tool.TTL() != 5*time.Minute {
		t.Fatalf("tool cache = %d entries / %s, want 100 / 5m",
			cfg.Caches.Tool.MaxEntries, cfg.Caches.Tool.TTL())
	}
	if cfg.Caches.Extension.MaxEntries != 50 || cfg.Caches.Extension.TTL() != 5*time.Minute {
		t.Fatalf("extension cache = %d entries / %s, want 50 / 5m",
			cfg.Caches.Extension.MaxEntries, cfg.Caches.Extension.TTL())
	}
	if cfg.Monitor.Interval() != 5*time.Second {
		t.Fatalf("monitor interval = %s, want 5s", cfg.Monitor.Interval())
	}
	if cfg.Analytics.Enabled {
		t.Fatal("analytics enabled by default")
	}
}

func TestParse_PartialOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
registry:
  root: /etc/capd/registry
caches:
  tool:
    max_entries: 200
    ttl_sec: 60
    max_entries_bound: 400
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Registry.Root != "/etc/capd/registry" {
		t.Fatalf("registry.root = %q", cfg.Registry.Root)
	}
	if cfg.Caches.Tool.MaxEntries != 200 || cfg.Caches.Tool.TTL() != time.Minute {
		t.Fatalf("tool cache = %d / %s, want 200 / 1m",
			cfg.Caches.Tool.MaxEntries, cfg.Caches.Tool.TTL())
	}
	// Untouched sections keep their defaults.
	if cfg.Caches.Extension.MaxEntries != 50 {
		t.Fatalf("extension max_entries = %d, want default 50", cfg.Caches.Extension.MaxEntries)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "zero tool ttl",
			yaml: "caches:\n  tool:\n    max_entries: 10\n    ttl_sec: 0\n",
			want: "ttl_sec",
		},
		{
			name: "negative monitor interval",
			yaml: "monitor:\n  interval_sec: -1\n",
			want: "interval_sec",
		},
		{
			name: "bound below max entries",
			yaml: "caches:\n  tool:\n    max_entries: 100\n    ttl_sec: 60\n    max_entries_bound: 10\n",
			want: "max_entries_bound",
		},
		{
			name: "analytics without path",
			yaml: "analytics:\n  enabled: true\n",
			want: "analytics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("caches: [not a map")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capd.yaml")
	if err := os.WriteFile(path, []byte("registry:\n  root: /srv/caps\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Registry.Root != "/srv/caps" {
		t.Fatalf("registry.root = %q, want /srv/caps", cfg.Registry.Root)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestThresholds_ToMonitor(t *testing.T) {
	th := Thresholds{SlowExecutionMS: 1500, LowHitRate: 0.3}
	m := th.ToMonitor()
	if m.SlowExecution != 1500*time.Millisecond {
		t.Fatalf("SlowExecution = %s, want 1.5s", m.SlowExecution)
	}
	if m.LowHitRate != 0.3 {
		t.Fatalf("LowHitRate = %v, want 0.3", m.LowHitRate)
	}
}
