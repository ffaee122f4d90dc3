package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Database.Backend != BackendPostgres {
		t.Errorf("expected backend %q, got %q", BackendPostgres, cfg.Database.Backend)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Recognition.Timeout != 30*time.Second {
		t.Errorf("expected 30s recognition timeout, got %v", cfg.Recognition.Timeout)
	}
	if cfg.Recognition.Mode != "classify" {
		t.Errorf("expected classify mode by default, got %q", cfg.Recognition.Mode)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.Backend != MatchBackendScan {
		t.Errorf("expected scan match backend, got %q", cfg.Matching.Backend)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("FACEREC_URL", "http://facerec:5000")
	t.Setenv("FACEREC_TIMEOUT", "5s")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("MATCH_BACKEND", "hnsw")
	t.Setenv("CATALOG_CACHE_TTL", "0")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg := Load()

	if cfg.Database.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Database.Backend)
	}
	if cfg.Recognition.URL != "http://facerec:5000" {
		t.Errorf("unexpected recognition URL %q", cfg.Recognition.URL)
	}
	if cfg.Recognition.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Recognition.Timeout)
	}
	if cfg.Matching.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.Backend != MatchBackendHNSW {
		t.Errorf("expected hnsw backend, got %q", cfg.Matching.Backend)
	}
	if cfg.Matching.CatalogCacheTTL != 0 {
		t.Errorf("expected cache disabled, got %v", cfg.Matching.CatalogCacheTTL)
	}
	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Errorf("expected 2 allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "invalid")
	t.Setenv("MATCH_THRESHOLD", "-1")
	t.Setenv("FACEREC_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected default 25 for invalid value, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("expected default threshold for negative value, got %v", cfg.Matching.Threshold)
	}
	if cfg.Recognition.Timeout != 30*time.Second {
		t.Errorf("expected default timeout for invalid value, got %v", cfg.Recognition.Timeout)
	}
}

func TestEnvDuration_BareSeconds(t *testing.T) {
	t.Setenv("TEST_DURATION", "12")

	if got := envDuration("TEST_DURATION", time.Minute); got != 12*time.Second {
		t.Errorf("expected 12s, got %v", got)
	}
}
