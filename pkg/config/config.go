// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Scheduler, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig limits search requests per client IP. Zero Requests
// disables limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters for the document
// source.
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig names the index, its categories, its document source and the
// storage backend its bundles live in.
type IndexConfig struct {
	Name       string       `yaml:"name"`
	Backend    string       `yaml:"backend"`
	DataDir    string       `yaml:"dataDir"`
	Categories []string     `yaml:"categories"`
	Source     SourceConfig `yaml:"source"`
}

// SourceConfig selects where documents are read from when indexing.
// Kind is "jsonl" (Path) or "postgres" (Table, IDColumn).
type SourceConfig struct {
	Kind     string `yaml:"kind"`
	Path     string `yaml:"path"`
	Table    string `yaml:"table"`
	IDColumn string `yaml:"idColumn"`
}

// SchedulerConfig controls how indexing work is executed.
type SchedulerConfig struct {
	Parallel bool `yaml:"parallel"`
	Factor   int  `yaml:"factor"`
}

// SearchConfig controls query evaluation: pagination defaults, the
// allocation budget and the weight table.
type SearchConfig struct {
	DefaultAmount     int           `yaml:"defaultAmount"`
	MaxAmount         int           `yaml:"maxAmount"`
	MaxAllocations    int           `yaml:"maxAllocations"`
	TerminateEarly    int           `yaml:"terminateEarly"`
	Unique            bool          `yaml:"unique"`
	IgnoredCategories []string      `yaml:"ignoredCategories"`
	Weights           []WeightEntry `yaml:"weights"`
}

// WeightEntry is one weight table row as written in YAML.
type WeightEntry struct {
	Categories []string `yaml:"categories"`
	Weight     float64  `yaml:"weight"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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
	if cfg.Scheduler.Factor <= 0 {
		cfg.Scheduler.Factor = DefaultSchedulerFactor
	}
	return cfg, nil
}

// DefaultSchedulerFactor is the worker concurrency used when none is set.
const DefaultSchedulerFactor = 2

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       RateLimitConfig{Window: time.Minute},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "picky",
			User:            "picky",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "picky-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			Name:       "documents",
			Backend:    "disk",
			DataDir:    "data/index",
			Categories: []string{"title", "author"},
			Source: SourceConfig{
				Kind:     "jsonl",
				Path:     "data/documents.jsonl",
				IDColumn: "id",
			},
		},
		Scheduler: SchedulerConfig{
			Parallel: true,
			Factor:   DefaultSchedulerFactor,
		},
		Search: SearchConfig{
			DefaultAmount:  20,
			MaxAmount:      100,
			MaxAllocations: 50,
			TerminateEarly: -1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PK_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PK_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PK_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PK_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PK_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PK_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("PK_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("PK_SCHEDULER_PARALLEL"); v != "" {
		if parallel, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Parallel = parallel
		}
	}
	if v := os.Getenv("PK_SCHEDULER_FACTOR"); v != "" {
		if factor, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.Factor = factor
		}
	}
	if v := os.Getenv("PK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
