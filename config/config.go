// Package config loads daemon configuration from a YAML file and the
// environment. Environment variables are prefixed with HASHROOT_ and win over
// the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/snapshot"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "HASHROOT_"

// Config is the complete daemon configuration.
type Config struct {
	// Owner is the only requester allowed to ingest.
	Owner string `yaml:"owner" env:"OWNER"`
	// Requester is the identity the daemon ingests as.
	Requester string `yaml:"requester" env:"REQUESTER"`

	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	GroupSize  int           `yaml:"group_size" env:"GROUP_SIZE"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`

	// ForbiddenLabels replaces the default biometric labels when set.
	ForbiddenLabels []string `yaml:"forbidden_labels" env:"FORBIDDEN_LABELS" envSeparator:","`

	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Sink      SinkConfig      `yaml:"sink" envPrefix:"SINK_"`
	Sync      SyncConfig      `yaml:"sync" envPrefix:"SYNC_"`
	Source    SourceConfig    `yaml:"source" envPrefix:"SOURCE_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // text | json
}

// SinkConfig selects where snapshots are written.
type SinkConfig struct {
	Kind        string `yaml:"kind" env:"KIND"` // local | minio | s3 | badger
	Dir         string `yaml:"dir" env:"DIR"`
	Bucket      string `yaml:"bucket" env:"BUCKET"`
	Prefix      string `yaml:"prefix" env:"PREFIX"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	Region      string `yaml:"region" env:"REGION"`
	AccessKey   string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey   string `yaml:"secret_key" env:"SECRET_KEY"`
	Secure      bool   `yaml:"secure" env:"SECURE"`
	Compression string `yaml:"compression" env:"COMPRESSION"`
	// Codec is the snapshot document format: json | json-indent.
	Codec string `yaml:"codec" env:"CODEC"`
	// History keeps a timestamped copy of every snapshot under history/.
	History bool `yaml:"history" env:"HISTORY"`
}

// SyncConfig configures the external syncers.
type SyncConfig struct {
	Retries     int           `yaml:"retries" env:"RETRIES"`
	MinInterval time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`

	Git      GitConfig      `yaml:"git" envPrefix:"GIT_"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb" envPrefix:"DYNAMODB_"`
}

// GitConfig configures the git syncer.
type GitConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	RepoDir string `yaml:"repo_dir" env:"REPO_DIR"`
	Remote  string `yaml:"remote" env:"REMOTE"`
	Branch  string `yaml:"branch" env:"BRANCH"`
}

// DynamoDBConfig configures the root pointer syncer.
type DynamoDBConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Table    string `yaml:"table" env:"TABLE"`
	Node     string `yaml:"node" env:"NODE"`
	Region   string `yaml:"region" env:"REGION"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// SourceConfig configures record sources.
type SourceConfig struct {
	QueueDir string `yaml:"queue_dir" env:"QUEUE_DIR"`
	// Generate emits this many synthetic frames per cycle. Zero disables it.
	Generate int `yaml:"generate" env:"GENERATE"`
}

// SchedulerConfig configures the load-driven scheduler.
type SchedulerConfig struct {
	// Monitor enables the CPU monitor. Without it the load is neutral.
	Monitor         bool          `yaml:"monitor" env:"MONITOR"`
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"MONITOR_INTERVAL"`
	Parallelism     int           `yaml:"parallelism" env:"PARALLELISM"`
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP URL. Tracing is off when empty.
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Owner:      "OWNER_ONLY",
		Requester:  "OWNER_ONLY",
		MaxEntries: 202,
		GroupSize:  100,
		TTL:        60 * time.Second,
		Interval:   10 * time.Second,
		Log:        LogConfig{Level: "info", Format: "text"},
		Sink: SinkConfig{
			Kind:        "local",
			Dir:         "hash_data",
			Compression: string(snapshot.None),
			Codec:       codec.Default.Name(),
		},
		Sync: SyncConfig{
			Retries:     3,
			MinInterval: time.Second,
			Git:         GitConfig{Remote: "origin", Branch: "main"},
			DynamoDB:    DynamoDBConfig{Table: "hashroot-roots", Node: "default"},
		},
		Scheduler: SchedulerConfig{
			MonitorInterval: 200 * time.Millisecond,
			Parallelism:     5,
			BatchSize:       10,
		},
		Telemetry: TelemetryConfig{ServiceName: "hashroot"},
	}
}

// Load reads path (optional), applies the process environment, and validates.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of os.Environ.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Owner == "" {
		errs = append(errs, errors.New("owner must not be empty"))
	}
	if c.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries))
	}
	if c.GroupSize < 2 {
		errs = append(errs, fmt.Errorf("group_size must be at least 2, got %d", c.GroupSize))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Sink.Kind {
	case "local", "badger":
		if c.Sink.Dir == "" {
			errs = append(errs, fmt.Errorf("sink.dir is required for %s sinks", c.Sink.Kind))
		}
	case "minio", "s3":
		if c.Sink.Bucket == "" {
			errs = append(errs, fmt.Errorf("sink.bucket is required for %s sinks", c.Sink.Kind))
		}
		if c.Sink.Kind == "minio" && c.Sink.Endpoint == "" {
			errs = append(errs, errors.New("sink.endpoint is required for minio sinks"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink.kind %q", c.Sink.Kind))
	}
	if _, err := snapshot.ParseCompression(c.Sink.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, ok := codec.ByName(c.Sink.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown sink.codec %q", c.Sink.Codec))
	}

	if c.Sync.Retries < 0 {
		errs = append(errs, fmt.Errorf("sync.retries must not be negative, got %d", c.Sync.Retries))
	}
	if c.Sync.Git.Enabled && c.Sink.Kind != "local" {
		errs = append(errs, errors.New("sync.git requires a local sink"))
	}
	if c.Sync.DynamoDB.Enabled && c.Sync.DynamoDB.Table == "" {
		errs = append(errs, errors.New("sync.dynamodb.table is required"))
	}
	if c.Source.Generate < 0 {
		errs = append(errs, fmt.Errorf("source.generate must not be negative, got %d", c.Source.Generate))
	}
	return errors.Join(errs...)
}
