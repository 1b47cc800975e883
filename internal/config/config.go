// Package config loads the settings shared by the ojs-api and ojs-worker
// binaries from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Worker  WorkerConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Logging LogConfig
}

// ServerConfig holds the enqueue API configuration.
type ServerConfig struct {
	Addr            string        `envconfig:"OJS_API_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"OJS_API_SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimitRPS    float64       `envconfig:"OJS_API_RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst  int           `envconfig:"OJS_API_RATE_LIMIT_BURST" default:"100"`
}

// RedisConfig holds the Redis adapter configuration.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Prefix   string `envconfig:"OJS_REDIS_PREFIX" default:"ojs"`
	Group    string `envconfig:"OJS_REDIS_GROUP" default:"ojs-workers"`
}

// WorkerConfig holds the worker loop configuration.
type WorkerConfig struct {
	Queues            []string      `envconfig:"OJS_QUEUES" default:"default"`
	Concurrency       int           `envconfig:"OJS_CONCURRENCY" default:"10"`
	GracePeriod       time.Duration `envconfig:"OJS_GRACE_PERIOD" default:"25s"`
	PollInterval      time.Duration `envconfig:"OJS_POLL_INTERVAL" default:"1s"`
	SchedulerInterval time.Duration `envconfig:"OJS_SCHEDULER_INTERVAL" default:"1s"`
}

// TracingConfig holds the tracer provider configuration.
type TracingConfig struct {
	ServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"ojs"`
	Exporter    string  `envconfig:"OJS_TRACE_EXPORTER" default:"stdout"`
	SampleRatio float64 `envconfig:"OJS_TRACE_SAMPLE_RATIO" default:"1"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr    string `envconfig:"OJS_METRICS_ADDR" default:":9090"`
	Enabled bool   `envconfig:"OJS_METRICS_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Trace exporters understood by the telemetry package.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that would make the binaries misbehave.
func (c *Config) Validate() error {
	if len(c.Worker.Queues) == 0 {
		return fmt.Errorf("config: at least one queue is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	switch c.Tracing.Exporter {
	case ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("config: unknown trace exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimitBurst:  100,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "ojs",
			Group:  "ojs-workers",
		},
		Worker: WorkerConfig{
			Queues:            []string{"default"},
			Concurrency:       10,
			GracePeriod:       25 * time.Second,
			PollInterval:      time.Second,
			SchedulerInterval: time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "ojs",
			Exporter:    ExporterStdout,
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
