package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
)

// DefaultBaseURL is the public HDSC grid archive root.
const DefaultBaseURL = "https://hdsc.nws.noaa.gov/pub/hdsc/data"

// Config holds all run settings, populated from environment variables.
type Config struct {
	HDSCBaseURL      string
	FetchWorkers     int
	FetchMaxAttempts int
	FetchTimeout     time.Duration
	FetchBackoffBase time.Duration
	FetchChunkSize   int
	MosaicWorkers    int

	// AllowMissingSHX tolerates shapefiles without a .shx index (SHAPE_RESTORE_SHX).
	AllowMissingSHX bool

	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Run-report publishing; disabled when KafkaBrokers is empty.
	KafkaBrokers     []string
	KafkaReportTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HDSCBaseURL:      strings.TrimRight(sharedcfg.EnvOrDefault("HDSC_BASE_URL", DefaultBaseURL), "/"),
		AllowMissingSHX:  parseBool(sharedcfg.EnvOrDefault("SHAPE_RESTORE_SHX", "YES")),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		ShutdownTimeout:  shutdownTimeout,
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "noaa-grid-runs"),
	}

	if brokers := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.FetchWorkers, err = positiveInt("FETCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.FetchMaxAttempts, err = positiveInt("FETCH_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.FetchChunkSize, err = positiveInt("FETCH_CHUNK_SIZE", 1<<20); err != nil {
		return nil, err
	}
	if cfg.MosaicWorkers, err = positiveInt("MOSAIC_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = positiveDuration("FETCH_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.FetchBackoffBase, err = nonNegativeDuration("FETCH_BACKOFF_BASE", "1s"); err != nil {
		return nil, err
	}

	if cfg.HDSCBaseURL == "" {
		return nil, fmt.Errorf("HDSC_BASE_URL is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaReportTopic == "" {
		return nil, fmt.Errorf("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// Limits returns the immutable run limits derived from the configuration.
func (c *Config) Limits() domain.Limits {
	l := domain.DefaultLimits()
	l.MaxAttempts = c.FetchMaxAttempts
	l.RequestTimeout = c.FetchTimeout
	l.BackoffBase = c.FetchBackoffBase
	l.ChunkSize = c.FetchChunkSize
	l.FetchWorkers = c.FetchWorkers
	l.MosaicWorkers = c.MosaicWorkers
	return l
}

// ReportingEnabled reports whether run reports should be published to Kafka.
func (c *Config) ReportingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func positiveInt(key string, def int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	d, err := nonNegativeDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func nonNegativeDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true
	}
	return false
}
