// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. JSON is a subset of YAML, so the
// engine's config.json (a "config" block plus a "files" list) loads as-is.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"config"`
	Files     []string        `yaml:"files"`
	Requests  string          `yaml:"requests"`
	Answers   string          `yaml:"answers"`
	Server    ServerConfig    `yaml:"server"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// engineSet records whether the "config" block was present in the file.
	engineSet bool
}

// EngineConfig names the engine and bounds the number of answers per request.
type EngineConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	MaxResponses int    `yaml:"max_responses"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
}

// IndexerConfig controls the index build. MaxWorkers <= 0 starts one worker
// per document.
type IndexerConfig struct {
	MaxWorkers int `yaml:"maxWorkers"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	MatchMode  string `yaml:"matchMode"`
	MaxResults int    `yaml:"maxResults"`
	CacheSize  int    `yaml:"cacheSize"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
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

// ArchiveConfig toggles persisting batch runs to PostgreSQL.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AnalyticsConfig controls search analytics. With Kafka set, events go
// through the analytics topic; otherwise they feed the in-process
// aggregator directly. Snapshots are written to PostgreSQL when
// SnapshotInterval is positive.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Kafka            bool          `yaml:"kafka"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// WatchConfig controls rebuilding the index when corpus files change.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
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

// UnmarshalYAML records whether the engine block was supplied so Validate can
// tell a missing section apart from a zero value.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "config" {
			c.engineSet = true
		}
	}
	return nil
}

// Load reads a YAML (or JSON) config file and applies environment-variable
// overrides. Missing values keep their defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return nil, fmt.Errorf("%w: config path is empty", apperrors.ErrInvalidConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a Config with local development defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Name:         "tfsearch",
			MaxResponses: 5,
		},
		Requests: "requests.json",
		Answers:  "answers.json",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			RateWindow:      time.Minute,
		},
		Search: SearchConfig{
			MatchMode:  "any",
			MaxResults: 100,
			CacheSize:  1024,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tfsearch",
			User:            "tfsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tfsearch-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "tfsearch-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BufferSize: 10000,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if !c.engineSet {
		result = multierror.Append(result, errors.New("field 'config' not found"))
	} else if c.Engine.MaxResponses <= 0 {
		result = multierror.Append(result, fmt.Errorf("config.max_responses must be positive, got %d", c.Engine.MaxResponses))
	}
	if len(c.Files) == 0 {
		result = multierror.Append(result, errors.New("field 'files' not found or empty"))
	}
	for i, f := range c.Files {
		if strings.TrimSpace(f) == "" {
			result = multierror.Append(result, fmt.Errorf("files[%d] is empty", i))
		}
	}
	if c.Indexer.MaxWorkers < 0 {
		result = multierror.Append(result, fmt.Errorf("indexer.maxWorkers must not be negative, got %d", c.Indexer.MaxWorkers))
	}
	switch strings.ToLower(c.Search.MatchMode) {
	case "", "any", "union", "all", "intersection":
	default:
		result = multierror.Append(result, fmt.Errorf("search.matchMode %q is not one of any, all", c.Search.MatchMode))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
	}
	return nil
}

// MarkEngineSet flags the engine block as supplied. Used when a Config is
// built in code rather than loaded from a file.
func (c *Config) MarkEngineSet() {
	c.engineSet = true
}

// applyEnvOverrides reads TF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TF_MAX_RESPONSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxResponses = n
		}
	}
	if v := os.Getenv("TF_REQUESTS"); v != "" {
		cfg.Requests = v
	}
	if v := os.Getenv("TF_ANSWERS"); v != "" {
		cfg.Answers = v
	}
	if v := os.Getenv("TF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TF_INDEXER_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxWorkers = n
		}
	}
	if v := os.Getenv("TF_SEARCH_MATCH_MODE"); v != "" {
		cfg.Search.MatchMode = v
	}
	if v := os.Getenv("TF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TF_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("TF_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("TF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
