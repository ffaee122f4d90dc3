package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Match backends
const (
	MatchBackendScan     = "scan"
	MatchBackendHNSW     = "hnsw"
	MatchBackendPgvector = "pgvector"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Matching    MatchingConfig    `yaml:"matching"`
	Web         WebConfig         `yaml:"web"`
	Log         LogConfig         `yaml:"log"`
}

type DatabaseConfig struct {
	Backend      string `yaml:"backend"`        // postgres or sqlite
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
	SQLitePath   string `yaml:"sqlite_path"`    // Database file used by the sqlite backend
}

type RecognitionConfig struct {
	URL       string        `yaml:"url"`        // Base URL of the face recognition service
	Timeout   time.Duration `yaml:"timeout"`    // Per-call timeout
	RateLimit float64       `yaml:"rate_limit"` // Requests per second, 0 disables pacing
	Mode      string        `yaml:"mode"`       // Initial recognition mode (classify or embed)
}

type MatchingConfig struct {
	Threshold       float64       `yaml:"threshold"`
	Backend         string        `yaml:"backend"` // scan, hnsw or pgvector
	HNSWCandidates  int           `yaml:"hnsw_candidates"`
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"` // 0 disables the catalog cache
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AdminToken     string   `yaml:"-"` // bearer token for admin routes, admin API is disabled when empty
	AllowedOrigins []string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float environment variable.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a duration such as "30s". A bare integer is taken as seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var defaults Config
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			Backend:      strings.ToLower(envString("STORAGE_BACKEND", defaults.Database.Backend)),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", defaults.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", defaults.Database.MaxIdleConns),
			SQLitePath:   envString("SQLITE_PATH", defaults.Database.SQLitePath),
		},
		Recognition: RecognitionConfig{
			URL:       envString("FACEREC_URL", defaults.Recognition.URL),
			Timeout:   envDuration("FACEREC_TIMEOUT", defaults.Recognition.Timeout),
			RateLimit: envFloat("FACEREC_RATE_LIMIT", defaults.Recognition.RateLimit),
			Mode:      strings.ToLower(envString("RECOGNITION_MODE", defaults.Recognition.Mode)),
		},
		Matching: MatchingConfig{
			Threshold:       envFloat("MATCH_THRESHOLD", defaults.Matching.Threshold),
			Backend:         strings.ToLower(envString("MATCH_BACKEND", defaults.Matching.Backend)),
			HNSWCandidates:  envInt("HNSW_CANDIDATES", defaults.Matching.HNSWCandidates),
			CatalogCacheTTL: envDuration("CATALOG_CACHE_TTL", defaults.Matching.CatalogCacheTTL),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", defaults.Web.Host),
			Port:           envInt("WEB_PORT", defaults.Web.Port),
			AdminToken:     os.Getenv("ADMIN_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", defaults.Log.Level)),
			Format: strings.ToLower(envString("LOG_FORMAT", defaults.Log.Format)),
		},
	}
}
