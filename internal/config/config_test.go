package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "SESSION_SECRET", "GIN_MODE", "LOG_MODE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" || cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen defaults: %+v", cfg)
	}
	if cfg.DatabasePath != "threadlog.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.SessionSecret == "" || cfg.GinMode != "release" || cfg.LogMode != "prod" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadHonorsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("DATABASE_PATH", " /tmp/test.db ")
	t.Setenv("GIN_MODE", "debug")

	cfg := Load()

	if cfg.Port != "9000" || cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("environment should win: %+v", cfg)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Fatalf("values should be trimmed, got %q", cfg.DatabasePath)
	}
	if cfg.GinMode != "debug" {
		t.Fatalf("unexpected gin mode: %q", cfg.GinMode)
	}
}
