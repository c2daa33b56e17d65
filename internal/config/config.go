// Package config provides the configuration structure for the sovits-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
)

// Defaults applied to unset values.
const (
	DefaultVoicesDir             = "voices"
	DefaultHTTPAddr              = "127.0.0.1:6006"
	DefaultRequestTimeoutSeconds = 300
	DefaultChunkMaxRunes         = 50
	DefaultChunkWorkers          = 1
	DefaultCacheBackend          = CacheBackendFS
	DefaultCacheDir              = "cache"
	DefaultCacheMaxAgeSeconds    = 86400
	DefaultSweepSchedule         = "0 */2 * * *"
	DefaultFeatureDim            = 1024
	DefaultCacheBucket           = "SOVITS_CACHE"
	DefaultAudioBucket           = "AUDIO_FILES"
)

// Cache backends.
const (
	CacheBackendFS   = "fs"
	CacheBackendNATS = "nats"
)

var (
	// ErrUnknownCacheBackend indicates an unsupported [cache].backend value.
	ErrUnknownCacheBackend = errors.New("unknown cache backend")
	// ErrNATSRequired indicates a NATS-backed feature without [nats].url.
	ErrNATSRequired = errors.New("nats url is required")
	// ErrNegativeValue indicates a numeric setting below zero.
	ErrNegativeValue = errors.New("value must be non-negative")
)

// ServiceConfig holds the request-path settings.
type ServiceConfig struct {
	VoicesDir             string `toml:"voices_dir"              env:"SOVITS_VOICES_DIR"`
	HTTPAddr              string `toml:"http_addr"               env:"SOVITS_HTTP_ADDR"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" env:"SOVITS_REQUEST_TIMEOUT_SECONDS"`
	ChunkMaxRunes         int    `toml:"chunk_max_runes"         env:"SOVITS_CHUNK_MAX_RUNES"`
	ChunkWorkers          int    `toml:"chunk_workers"           env:"SOVITS_CHUNK_WORKERS"`
}

// CacheConfig holds the result cache settings.
type CacheConfig struct {
	Backend       string `toml:"backend"         env:"SOVITS_CACHE_BACKEND"`
	Dir           string `toml:"dir"             env:"SOVITS_CACHE_DIR"`
	MaxAgeSeconds int    `toml:"max_age_seconds" env:"SOVITS_CACHE_MAX_AGE_SECONDS"`
	SweepSchedule string `toml:"sweep_schedule"  env:"SOVITS_CACHE_SWEEP_SCHEDULE"`
}

// FrontendConfig holds the linguistic frontend resources.
type FrontendConfig struct {
	SymbolsPath string `toml:"symbols_path" env:"SOVITS_SYMBOLS_PATH"`
	DictDir     string `toml:"dict_dir"     env:"SOVITS_DICT_DIR"`
	FeatureDim  int    `toml:"feature_dim"  env:"SOVITS_FEATURE_DIM"`
}

// BackendConfig holds the compute backend settings.
type BackendConfig struct {
	OnnxRuntimeLib   string `toml:"onnxruntime_lib"    env:"SOVITS_ONNXRUNTIME_LIB"`
	ContentModelPath string `toml:"content_model_path" env:"SOVITS_CONTENT_MODEL_PATH"`
	IntraOpThreads   int    `toml:"intra_op_threads"   env:"SOVITS_INTRA_OP_THREADS"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"                         env:"SOVITS_NATS_URL"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	CacheBucket              string `toml:"cache_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"SOVITS_LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Cache    CacheConfig    `toml:"cache"`
	Frontend FrontendConfig `toml:"frontend"`
	Backend  BackendConfig  `toml:"backend"`
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the sovits-service, overlays environment variables,
// fills defaults and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = Finalize(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Finalize applies environment overrides and defaults, then validates.
func Finalize(cfg *Config) error {
	err := env.Parse(cfg)
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	return cfg.Validate()
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	setString(&c.Service.VoicesDir, DefaultVoicesDir)
	setString(&c.Service.HTTPAddr, DefaultHTTPAddr)
	setInt(&c.Service.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)
	setInt(&c.Service.ChunkMaxRunes, DefaultChunkMaxRunes)
	setInt(&c.Service.ChunkWorkers, DefaultChunkWorkers)
	setString(&c.Cache.Backend, DefaultCacheBackend)
	setString(&c.Cache.Dir, DefaultCacheDir)
	setInt(&c.Cache.MaxAgeSeconds, DefaultCacheMaxAgeSeconds)
	setString(&c.Cache.SweepSchedule, DefaultSweepSchedule)
	setInt(&c.Frontend.FeatureDim, DefaultFeatureDim)
	setString(&c.NATS.CacheBucket, DefaultCacheBucket)
	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendFS:
	case CacheBackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: cache backend %q", ErrNATSRequired, c.Cache.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCacheBackend, c.Cache.Backend)
	}

	numeric := map[string]int{
		"service.request_timeout_seconds": c.Service.RequestTimeoutSeconds,
		"service.chunk_max_runes":         c.Service.ChunkMaxRunes,
		"service.chunk_workers":           c.Service.ChunkWorkers,
		"cache.max_age_seconds":           c.Cache.MaxAgeSeconds,
		"frontend.feature_dim":            c.Frontend.FeatureDim,
		"backend.intra_op_threads":        c.Backend.IntraOpThreads,
	}

	for name, value := range numeric {
		if value < 0 {
			return fmt.Errorf("%w: %s = %d", ErrNegativeValue, name, value)
		}
	}

	return nil
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeoutSeconds) * time.Second
}

// CacheMaxAge returns the sweep age threshold.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeSeconds) * time.Second
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
