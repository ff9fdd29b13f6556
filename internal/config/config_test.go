package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9001
storage:
  backend: memory
settings:
  poll_interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Settings.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %s, want 2s", cfg.Settings.PollInterval)
	}
	// Untouched values keep defaults.
	if cfg.Settings.FetchTimeout != 5*time.Second {
		t.Fatalf("fetch timeout = %s, want default 5s", cfg.Settings.FetchTimeout)
	}
	if cfg.Audit.PruneSchedule != "@daily" {
		t.Fatalf("prune schedule = %q, want @daily", cfg.Audit.PruneSchedule)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("PORT", "9999")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Supabase.URL != "https://example.supabase.co" {
		t.Fatalf("url = %q", cfg.Storage.Supabase.URL)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d, want 9999", cfg.Server.Port)
	}
}

func TestValidateRejectsMissingSupabaseCredentials(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "supabase"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for missing supabase credentials")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "cassandra"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
