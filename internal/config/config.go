// Package config holds the runtime configuration of the shortener
// processes. Values are applied in priority order: built-in defaults,
// then an optional YAML/JSON file, then SHORTR_* environment variables,
// then functional options (highest). Validation runs last.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shortr-io/shortr/internal/core"
)

// Enum values for the pluggable backends.
const (
	StrategyBase62 = "base62"
	StrategyRandom = "random"

	CacheRemote = "remote"
	CacheMemory = "memory"
	CacheNull   = "null"

	QueueStreams = "streams"
	QueueMemory  = "memory"

	HitStoreRow    = "rowstore"
	HitStoreColumn = "columnstore"
)

// Config is the root configuration shared by the API server and the
// hit worker.
type Config struct {
	Environment string `json:"environment" yaml:"environment" env:"SHORTR_ENVIRONMENT" default:"development"`
	Debug       bool   `json:"debug" yaml:"debug" env:"SHORTR_DEBUG" default:"false"`
	// BaseURL is prepended to short codes when rendering short_url.
	BaseURL string `json:"base_url" yaml:"base_url" env:"SHORTR_BASE_URL" default:"http://localhost:8000"`
	Host    string `json:"host" yaml:"host" env:"SHORTR_HOST" default:"0.0.0.0"`
	Port    int    `json:"port" yaml:"port" env:"SHORTR_PORT" default:"8000"`

	Store      StoreConfig      `json:"store" yaml:"store"`
	ShortCode  ShortCodeConfig  `json:"short_code" yaml:"short_code"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	HitStorage HitStorageConfig `json:"hit_storage" yaml:"hit_storage"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// StoreConfig configures the authoritative URL store. The URL scheme
// selects the driver: postgres:// for production, sqlite://path or a
// bare file path for development.
type StoreConfig struct {
	URL            string        `json:"url" yaml:"url" env:"SHORTR_STORE_URL" default:"sqlite://shortr.db"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"SHORTR_STORE_CONNECT_TIMEOUT" default:"2s"`
	MaxOpenConns   int           `json:"max_open_conns" yaml:"max_open_conns" env:"SHORTR_STORE_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns   int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"SHORTR_STORE_MAX_IDLE_CONNS" default:"5"`
}

// ShortCodeConfig configures code generation (C1 of the serving core).
type ShortCodeConfig struct {
	Strategy   string `json:"strategy" yaml:"strategy" env:"SHORTR_SHORTCODE_STRATEGY" default:"base62"`
	Length     int    `json:"length" yaml:"length" env:"SHORTR_SHORTCODE_LENGTH" default:"5"`
	Salt       int64  `json:"salt" yaml:"salt" env:"SHORTR_SHORTCODE_SALT" default:"1256"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries" env:"SHORTR_SHORTCODE_MAX_RETRIES" default:"5"`
}

// CacheConfig configures the lookaside cache.
type CacheConfig struct {
	Backend        string        `json:"backend" yaml:"backend" env:"SHORTR_CACHE_BACKEND" default:"memory"`
	URL            string        `json:"url" yaml:"url" env:"SHORTR_CACHE_URL" default:"redis://localhost:6379/0"`
	TTL            time.Duration `json:"ttl" yaml:"ttl" env:"SHORTR_CACHE_TTL" default:"1h"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"SHORTR_CACHE_CONNECT_TIMEOUT" default:"2s"`
	OpTimeout      time.Duration `json:"op_timeout" yaml:"op_timeout" env:"SHORTR_CACHE_OP_TIMEOUT" default:"2s"`
}

// QueueConfig configures the hit-event queue.
type QueueConfig struct {
	Backend       string        `json:"backend" yaml:"backend" env:"SHORTR_QUEUE_BACKEND" default:"memory"`
	URL           string        `json:"url" yaml:"url" env:"SHORTR_QUEUE_URL" default:"redis://localhost:6379/1"`
	StreamName    string        `json:"stream_name" yaml:"stream_name" env:"SHORTR_QUEUE_STREAM" default:"url_hits"`
	ConsumerGroup string        `json:"consumer_group" yaml:"consumer_group" env:"SHORTR_QUEUE_GROUP" default:"url_workers"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size" env:"SHORTR_QUEUE_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval" env:"SHORTR_QUEUE_POLL_INTERVAL" default:"1s"`
	// ReclaimMinIdle is how long a pending message may sit unacked before
	// another consumer in the group may claim it.
	ReclaimMinIdle time.Duration `json:"reclaim_min_idle" yaml:"reclaim_min_idle" env:"SHORTR_QUEUE_RECLAIM_MIN_IDLE" default:"1m"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"SHORTR_QUEUE_CONNECT_TIMEOUT" default:"2s"`
	OpTimeout      time.Duration `json:"op_timeout" yaml:"op_timeout" env:"SHORTR_QUEUE_OP_TIMEOUT" default:"2s"`
}

// HitStorageConfig configures the analytics store. Target is a file
// path for the rowstore backend and a DSN for the columnstore backend.
type HitStorageConfig struct {
	Backend       string        `json:"backend" yaml:"backend" env:"SHORTR_HITSTORE_BACKEND" default:"rowstore"`
	Target        string        `json:"target" yaml:"target" env:"SHORTR_HITSTORE_TARGET" default:"hits.db"`
	Buffered      bool          `json:"buffered" yaml:"buffered" env:"SHORTR_HITSTORE_BUFFERED" default:"false"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size" env:"SHORTR_HITSTORE_BUFFER_SIZE" default:"1000"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval" env:"SHORTR_HITSTORE_FLUSH_INTERVAL" default:"5s"`
}

// WorkerConfig configures the hit worker's flush discipline.
type WorkerConfig struct {
	FlushInterval   time.Duration `json:"flush_interval" yaml:"flush_interval" env:"SHORTR_WORKER_FLUSH_INTERVAL" default:"30s"`
	FlushThreshold  int           `json:"flush_threshold" yaml:"flush_threshold" env:"SHORTR_WORKER_FLUSH_THRESHOLD" default:"50"`
	RetryDelay      time.Duration `json:"retry_delay" yaml:"retry_delay" env:"SHORTR_WORKER_RETRY_DELAY" default:"1s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHORTR_WORKER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" env:"SHORTR_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" env:"SHORTR_HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"SHORTR_HTTP_IDLE_TIMEOUT" default:"120s"`
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout" env:"SHORTR_HTTP_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHORTR_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoggingConfig configures the process logger. An empty format means
// auto-detect (JSON inside Kubernetes, text elsewhere).
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"SHORTR_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"SHORTR_LOG_FORMAT" default:""`
}

// Option modifies configuration. Options are applied in order and can
// return an error if the value is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Debug:       false,
		BaseURL:     "http://localhost:8000",
		Host:        "0.0.0.0",
		Port:        8000,
		Store: StoreConfig{
			URL:            "sqlite://shortr.db",
			ConnectTimeout: 2 * time.Second,
			MaxOpenConns:   10,
			MaxIdleConns:   5,
		},
		ShortCode: ShortCodeConfig{
			Strategy:   StrategyBase62,
			Length:     5,
			Salt:       1256,
			MaxRetries: 5,
		},
		Cache: CacheConfig{
			Backend:        CacheMemory,
			URL:            "redis://localhost:6379/0",
			TTL:            time.Hour,
			ConnectTimeout: 2 * time.Second,
			OpTimeout:      2 * time.Second,
		},
		Queue: QueueConfig{
			Backend:        QueueMemory,
			URL:            "redis://localhost:6379/1",
			StreamName:     "url_hits",
			ConsumerGroup:  "url_workers",
			BatchSize:      100,
			PollInterval:   time.Second,
			ReclaimMinIdle: time.Minute,
			ConnectTimeout: 2 * time.Second,
			OpTimeout:      2 * time.Second,
		},
		HitStorage: HitStorageConfig{
			Backend:       HitStoreRow,
			Target:        "hits.db",
			Buffered:      false,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
		},
		Worker: WorkerConfig{
			FlushInterval:   30 * time.Second,
			FlushThreshold:  50,
			RetryDelay:      time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "",
		},
	}
}

// LoadFromEnv overlays SHORTR_* environment variables onto the config.
func (c *Config) LoadFromEnv() error {
	// Core settings
	if v := os.Getenv("SHORTR_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SHORTR_DEBUG"); v != "" {
		c.Debug = parseBool(v)
	}
	if v := os.Getenv("SHORTR_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SHORTR_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("SHORTR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}

	// Authoritative store
	if v := os.Getenv("SHORTR_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("SHORTR_STORE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.ConnectTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_STORE_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.MaxOpenConns = n
		}
	}
	if v := os.Getenv("SHORTR_STORE_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.MaxIdleConns = n
		}
	}

	// Short-code generation
	if v := os.Getenv("SHORTR_SHORTCODE_STRATEGY"); v != "" {
		c.ShortCode.Strategy = v
	}
	if v := os.Getenv("SHORTR_SHORTCODE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ShortCode.Length = n
		}
	}
	if v := os.Getenv("SHORTR_SHORTCODE_SALT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ShortCode.Salt = n
		}
	}
	if v := os.Getenv("SHORTR_SHORTCODE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ShortCode.MaxRetries = n
		}
	}

	// Cache
	if v := os.Getenv("SHORTR_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("SHORTR_CACHE_URL"); v != "" {
		c.Cache.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.URL = v
	}
	if v := os.Getenv("SHORTR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("SHORTR_CACHE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.ConnectTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_CACHE_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.OpTimeout = d
		}
	}

	// Queue
	if v := os.Getenv("SHORTR_QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = v
	}
	if v := os.Getenv("SHORTR_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("SHORTR_QUEUE_STREAM"); v != "" {
		c.Queue.StreamName = v
	}
	if v := os.Getenv("SHORTR_QUEUE_GROUP"); v != "" {
		c.Queue.ConsumerGroup = v
	}
	if v := os.Getenv("SHORTR_QUEUE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.BatchSize = n
		}
	}
	if v := os.Getenv("SHORTR_QUEUE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.PollInterval = d
		}
	}
	if v := os.Getenv("SHORTR_QUEUE_RECLAIM_MIN_IDLE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.ReclaimMinIdle = d
		}
	}
	if v := os.Getenv("SHORTR_QUEUE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.ConnectTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_QUEUE_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.OpTimeout = d
		}
	}

	// Hit storage
	if v := os.Getenv("SHORTR_HITSTORE_BACKEND"); v != "" {
		c.HitStorage.Backend = v
	}
	if v := os.Getenv("SHORTR_HITSTORE_TARGET"); v != "" {
		c.HitStorage.Target = v
	}
	if v := os.Getenv("SHORTR_HITSTORE_BUFFERED"); v != "" {
		c.HitStorage.Buffered = parseBool(v)
	}
	if v := os.Getenv("SHORTR_HITSTORE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HitStorage.BufferSize = n
		}
	}
	if v := os.Getenv("SHORTR_HITSTORE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HitStorage.FlushInterval = d
		}
	}

	// Worker
	if v := os.Getenv("SHORTR_WORKER_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.FlushInterval = d
		}
	}
	if v := os.Getenv("SHORTR_WORKER_FLUSH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.FlushThreshold = n
		}
	}
	if v := os.Getenv("SHORTR_WORKER_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.RetryDelay = d
		}
	}
	if v := os.Getenv("SHORTR_WORKER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Worker.ShutdownTimeout = d
		}
	}

	// HTTP
	if v := os.Getenv("SHORTR_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_HTTP_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.IdleTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_HTTP_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.RequestTimeout = d
		}
	}
	if v := os.Getenv("SHORTR_HTTP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ShutdownTimeout = d
		}
	}

	// Logging
	if v := os.Getenv("SHORTR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHORTR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}

// LoadFromFile merges a YAML or JSON file into the config.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, core.ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", core.ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", core.ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	if c.BaseURL == "" {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "base_url is required",
			Err:     core.ErrMissingConfiguration,
		}
	}

	if c.Store.URL == "" {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "store url is required",
			Err:     core.ErrMissingConfiguration,
		}
	}

	switch c.ShortCode.Strategy {
	case StrategyBase62, StrategyRandom:
	default:
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown short_code strategy: %q", c.ShortCode.Strategy),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if c.ShortCode.Length < 1 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("short_code length must be positive, got %d", c.ShortCode.Length),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if c.ShortCode.Salt < 0 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "short_code salt must not be negative",
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if c.ShortCode.MaxRetries < 1 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("short_code max_retries must be positive, got %d", c.ShortCode.MaxRetries),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	switch c.Cache.Backend {
	case CacheRemote:
		if c.Cache.URL == "" {
			return &core.ServiceError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "cache url is required for the remote backend",
				Err:     core.ErrMissingConfiguration,
			}
		}
	case CacheMemory, CacheNull:
	default:
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown cache backend: %q", c.Cache.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	switch c.Queue.Backend {
	case QueueStreams:
		if c.Queue.URL == "" {
			return &core.ServiceError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "queue url is required for the streams backend",
				Err:     core.ErrMissingConfiguration,
			}
		}
	case QueueMemory:
	default:
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown queue backend: %q", c.Queue.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if c.Queue.BatchSize < 1 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("queue batch_size must be positive, got %d", c.Queue.BatchSize),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	switch c.HitStorage.Backend {
	case HitStoreRow, HitStoreColumn:
	default:
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown hit_storage backend: %q", c.HitStorage.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if c.HitStorage.Target == "" {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "hit_storage target is required",
			Err:     core.ErrMissingConfiguration,
		}
	}
	if c.HitStorage.BufferSize < 1 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("hit_storage buffer_size must be positive, got %d", c.HitStorage.BufferSize),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	if c.Worker.FlushThreshold < 1 {
		return &core.ServiceError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("worker flush_threshold must be positive, got %d", c.Worker.FlushThreshold),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	return nil
}

// Load builds a configuration: defaults, then the file at path (if any),
// then environment variables, then options, then validation.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("SHORTR_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// New builds a configuration without a file: defaults, environment,
// options, validation.
func New(opts ...Option) (*Config, error) {
	return Load("", opts...)
}

// WithEnvironment sets the deployment environment name.
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		c.Environment = env
		return nil
	}
}

// WithBaseURL sets the public base URL used to render short links.
func WithBaseURL(u string) Option {
	return func(c *Config) error {
		if u == "" {
			return fmt.Errorf("base url must not be empty: %w", core.ErrInvalidConfiguration)
		}
		c.BaseURL = strings.TrimRight(u, "/")
		return nil
	}
}

// WithPort sets the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %d: %w", port, core.ErrInvalidConfiguration)
		}
		c.Port = port
		return nil
	}
}

// WithStoreURL sets the authoritative store DSN.
func WithStoreURL(u string) Option {
	return func(c *Config) error {
		c.Store.URL = u
		return nil
	}
}

// WithShortCodeStrategy selects the code generation strategy.
func WithShortCodeStrategy(strategy string) Option {
	return func(c *Config) error {
		c.ShortCode.Strategy = strategy
		return nil
	}
}

// WithSalt sets the Base62 obfuscation salt.
func WithSalt(salt int64) Option {
	return func(c *Config) error {
		c.ShortCode.Salt = salt
		return nil
	}
}

// WithCache selects the cache backend and its URL.
func WithCache(backend, url string) Option {
	return func(c *Config) error {
		c.Cache.Backend = backend
		if url != "" {
			c.Cache.URL = url
		}
		return nil
	}
}

// WithCacheTTL sets the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive: %w", core.ErrInvalidConfiguration)
		}
		c.Cache.TTL = ttl
		return nil
	}
}

// WithQueue selects the queue backend and its URL.
func WithQueue(backend, url string) Option {
	return func(c *Config) error {
		c.Queue.Backend = backend
		if url != "" {
			c.Queue.URL = url
		}
		return nil
	}
}

// WithHitStorage selects the hit storage backend and its target.
func WithHitStorage(backend, target string) Option {
	return func(c *Config) error {
		c.HitStorage.Backend = backend
		if target != "" {
			c.HitStorage.Target = target
		}
		return nil
	}
}

// WithWorkerFlush sets the worker counter-flush interval and the
// distinct-code threshold that forces an early flush.
func WithWorkerFlush(interval time.Duration, threshold int) Option {
	return func(c *Config) error {
		if interval <= 0 || threshold < 1 {
			return fmt.Errorf("invalid worker flush settings: %w", core.ErrInvalidConfiguration)
		}
		c.Worker.FlushInterval = interval
		c.Worker.FlushThreshold = threshold
		return nil
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// parseBool parses truthy strings the way the env loader expects.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
