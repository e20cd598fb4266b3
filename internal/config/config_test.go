package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortr-io/shortr/internal/core"
)

func TestDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ShortCode.Strategy != StrategyBase62 {
		t.Errorf("ShortCode.Strategy = %q, want base62", cfg.ShortCode.Strategy)
	}
	if cfg.ShortCode.Length != 5 {
		t.Errorf("ShortCode.Length = %d, want 5", cfg.ShortCode.Length)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Queue.BatchSize != 100 {
		t.Errorf("Queue.BatchSize = %d, want 100", cfg.Queue.BatchSize)
	}
	if cfg.Queue.PollInterval != time.Second {
		t.Errorf("Queue.PollInterval = %v, want 1s", cfg.Queue.PollInterval)
	}
	if cfg.HitStorage.BufferSize != 1000 {
		t.Errorf("HitStorage.BufferSize = %d, want 1000", cfg.HitStorage.BufferSize)
	}
	if cfg.Worker.FlushThreshold != 50 {
		t.Errorf("Worker.FlushThreshold = %d, want 50", cfg.Worker.FlushThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHORTR_PORT", "9090")
	t.Setenv("SHORTR_CACHE_BACKEND", "null")
	t.Setenv("SHORTR_CACHE_TTL", "10m")
	t.Setenv("SHORTR_SHORTCODE_SALT", "42")
	t.Setenv("SHORTR_QUEUE_BACKEND", "streams")
	t.Setenv("SHORTR_QUEUE_URL", "redis://queue:6379/1")
	t.Setenv("SHORTR_WORKER_FLUSH_INTERVAL", "5s")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Cache.Backend != CacheNull {
		t.Errorf("Cache.Backend = %q, want null", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m", cfg.Cache.TTL)
	}
	if cfg.ShortCode.Salt != 42 {
		t.Errorf("ShortCode.Salt = %d, want 42", cfg.ShortCode.Salt)
	}
	if cfg.Queue.Backend != QueueStreams {
		t.Errorf("Queue.Backend = %q, want streams", cfg.Queue.Backend)
	}
	if cfg.Worker.FlushInterval != 5*time.Second {
		t.Errorf("Worker.FlushInterval = %v, want 5s", cfg.Worker.FlushInterval)
	}
}

func TestOptionsOverrideEnv(t *testing.T) {
	t.Setenv("SHORTR_PORT", "9090")

	cfg, err := New(WithPort(7777), WithSalt(9), WithCache(CacheRemote, "redis://cache:6379/0"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want option value 7777", cfg.Port)
	}
	if cfg.ShortCode.Salt != 9 {
		t.Errorf("Salt = %d, want 9", cfg.ShortCode.Salt)
	}
	if cfg.Cache.Backend != CacheRemote || cfg.Cache.URL != "redis://cache:6379/0" {
		t.Errorf("cache = %q %q", cfg.Cache.Backend, cfg.Cache.URL)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shortr.yaml")
	body := []byte(`
environment: production
base_url: https://sho.rt
short_code:
  strategy: random
  length: 6
queue:
  backend: streams
  url: redis://q:6379/2
  stream_name: hits
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != "production" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.BaseURL != "https://sho.rt" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ShortCode.Strategy != StrategyRandom || cfg.ShortCode.Length != 6 {
		t.Errorf("short_code = %q %d", cfg.ShortCode.Strategy, cfg.ShortCode.Length)
	}
	if cfg.Queue.StreamName != "hits" {
		t.Errorf("StreamName = %q, want hits", cfg.Queue.StreamName)
	}
	// Untouched sections keep their defaults
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want default 1h", cfg.Cache.TTL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shortr.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SHORTR_PORT", "9001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("Port = %d, want env value 9001", cfg.Port)
	}
}

func TestLoadFromFileRejectsUnknownExtension(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile("config.toml")
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.BaseURL = "" },
			wantErr: core.ErrMissingConfiguration,
		},
		{
			name:    "missing store url",
			mutate:  func(c *Config) { c.Store.URL = "" },
			wantErr: core.ErrMissingConfiguration,
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.ShortCode.Strategy = "uuid" },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "negative salt",
			mutate:  func(c *Config) { c.ShortCode.Salt = -1 },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name: "remote cache without url",
			mutate: func(c *Config) {
				c.Cache.Backend = CacheRemote
				c.Cache.URL = ""
			},
			wantErr: core.ErrMissingConfiguration,
		},
		{
			name:    "unknown queue backend",
			mutate:  func(c *Config) { c.Queue.Backend = "kafka" },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Queue.BatchSize = 0 },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "unknown hit storage backend",
			mutate:  func(c *Config) { c.HitStorage.Backend = "parquet" },
			wantErr: core.ErrInvalidConfiguration,
		},
		{
			name:    "missing hit storage target",
			mutate:  func(c *Config) { c.HitStorage.Target = "" },
			wantErr: core.ErrMissingConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
