// Package config loads and validates the configuration of a top-K run from
// a YAML file with environment-variable overrides. It provides typed structs
// for the pipeline itself and for every report sink and ambient subsystem.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/frequent-sentences/pkg/errors"
)

// DefaultMaxRecords is the accumulator flush threshold when none is given.
const DefaultMaxRecords = 500

// Config is the top-level application configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Report   ReportConfig   `yaml:"report"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PipelineConfig controls the frequency engine.
type PipelineConfig struct {
	// Capacity is K, the number of most frequent items to report.
	Capacity int `yaml:"capacity"`
	// MaxRecords is the accumulator's soft flush threshold.
	MaxRecords int `yaml:"maxRecords"`
	// WorkDir holds per-run directories. Empty means "dump" next to the input.
	WorkDir string `yaml:"workDir"`
	// KeepArtifacts keeps partitions, the merge file and the manifest.
	KeepArtifacts bool `yaml:"keepArtifacts"`
	// ReadAhead is the number of lines buffered between reader and accumulator.
	ReadAhead int `yaml:"readAhead"`
}

// ReportConfig selects the sinks the final top-K is published to.
type ReportConfig struct {
	Console  bool          `yaml:"console"`
	Redis    bool          `yaml:"redis"`
	Postgres bool          `yaml:"postgres"`
	Kafka    bool          `yaml:"kafka"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	ReportTopic string   `yaml:"reportTopic"`
}

// RedisConfig holds Redis connection parameters and report key layout.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	ReportTTL time.Duration `yaml:"reportTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls whether the run's span tree is logged.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus scrape server and Pushgateway.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	JobName        string `yaml:"jobName"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values. Load does not validate; call Validate once flags are applied.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the pipeline settings that have no usable default.
func (c *Config) Validate() error {
	if c.Pipeline.Capacity <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "validating config", "",
			"capacity must be a positive integer, got %d", c.Pipeline.Capacity)
	}
	if c.Pipeline.MaxRecords <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "validating config", "",
			"maxRecords must be a positive integer, got %d", c.Pipeline.MaxRecords)
	}
	if c.Pipeline.ReadAhead < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "validating config", "",
			"readAhead must not be negative, got %d", c.Pipeline.ReadAhead)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for a local run.
func defaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxRecords: DefaultMaxRecords,
			ReadAhead:  256,
		},
		Report: ReportConfig{
			Console: true,
			Timeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "topk",
			User:            "topk",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			ReportTopic: "topk-reports",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  4,
			KeyPrefix: "topk",
			ReportTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port:    9090,
			JobName: "topk",
		},
	}
}

// applyEnvOverrides reads TOPK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOPK_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Capacity = n
		}
	}
	if v := os.Getenv("TOPK_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxRecords = n
		}
	}
	if v := os.Getenv("TOPK_WORK_DIR"); v != "" {
		cfg.Pipeline.WorkDir = v
	}
	if v := os.Getenv("TOPK_KEEP_ARTIFACTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.KeepArtifacts = b
		}
	}
	if v := os.Getenv("TOPK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TOPK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TOPK_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TOPK_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TOPK_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TOPK_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TOPK_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TOPK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TOPK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOPK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TOPK_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}
