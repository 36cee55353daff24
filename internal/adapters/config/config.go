package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"pacelab/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Artifacts     ArtifactConfig
	Model         ModelConfig
	Fallback      FallbackConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"pacelab"`
	Env         string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`

	ConnectTimeout time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"5s"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig configures the optional audit analytics mirror
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"pacelab"`
}

// RedisConfig is used for the retrain lock and, with ARTIFACT_BACKEND=redis, for artifacts
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`

	SampleRate float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"1"`
}

// ArtifactConfig selects where fitted model artifacts are stored
type ArtifactConfig struct {
	Backend string `envconfig:"ARTIFACT_BACKEND" default:"badger"` // badger|redis
	Path    string `envconfig:"ARTIFACT_PATH" default:"./data/artifacts"`
}

// ModelConfig controls training. ClusterCount and Labels are validated together.
type ModelConfig struct {
	ClusterCount    int           `envconfig:"MODEL_CLUSTER_COUNT" default:"3"`
	Seed            int64         `envconfig:"MODEL_SEED" default:"42"`
	Restarts        int           `envconfig:"MODEL_RESTARTS" default:"10"`
	MaxIterations   int           `envconfig:"MODEL_MAX_ITERATIONS" default:"300"`
	MinSamples      int           `envconfig:"MODEL_MIN_SAMPLES" default:"5"`
	Labels          []string      `envconfig:"MODEL_LABELS"`            // fastest first; empty = default for ClusterCount
	LabelPolicyFile string        `envconfig:"MODEL_LABEL_POLICY_FILE"` // YAML, overrides Labels
	AutoActivate    bool          `envconfig:"MODEL_AUTO_ACTIVATE" default:"true"`
	TrainingTimeout time.Duration `envconfig:"MODEL_TRAINING_TIMEOUT" default:"5m"`
}

// FallbackConfig drives the era-based rule used when the model cannot answer
type FallbackConfig struct {
	Cutoff       string  `envconfig:"FALLBACK_CUTOFF" default:"2024-01-01"`
	LabelBefore  string  `envconfig:"FALLBACK_LABEL_BEFORE" default:"walk"`
	LabelAfter   string  `envconfig:"FALLBACK_LABEL_AFTER" default:"run"`
	DefaultLabel string  `envconfig:"FALLBACK_DEFAULT_LABEL" default:"mixed"`
	Confidence   float64 `envconfig:"FALLBACK_CONFIDENCE" default:"0.4"`
}

// CutoffTime parses Cutoff as a YYYY-MM-DD date in UTC
func (c FallbackConfig) CutoffTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Cutoff)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrInvalidInput, "FALLBACK_CUTOFF %q", c.Cutoff)
	}
	return t.UTC(), nil
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	IntegrityInterval        time.Duration `envconfig:"WORKER_INTEGRITY_INTERVAL" default:"5m"`
	IntegrityEnabled         bool          `envconfig:"WORKER_INTEGRITY_ENABLED" default:"true"`
	RetrainInterval          time.Duration `envconfig:"WORKER_RETRAIN_INTERVAL" default:"6h"`
	RetrainEnabled           bool          `envconfig:"WORKER_RETRAIN_ENABLED" default:"true"`
	RetrainFeedbackThreshold int           `envconfig:"WORKER_RETRAIN_FEEDBACK_THRESHOLD" default:"20"`
	RetrainLockTTL           time.Duration `envconfig:"WORKER_RETRAIN_LOCK_TTL" default:"15m"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if c.Model.ClusterCount < 1 {
		return errors.NewValidationError("MODEL_CLUSTER_COUNT", "must be at least 1", c.Model.ClusterCount)
	}
	if c.Model.Restarts < 1 {
		return errors.NewValidationError("MODEL_RESTARTS", "must be at least 1", c.Model.Restarts)
	}
	if c.Model.MinSamples < c.Model.ClusterCount {
		return errors.NewValidationError("MODEL_MIN_SAMPLES", "must be >= MODEL_CLUSTER_COUNT", c.Model.MinSamples)
	}
	if c.Fallback.Confidence < 0 || c.Fallback.Confidence >= 0.5 {
		return errors.NewValidationError("FALLBACK_CONFIDENCE", "must be in [0, 0.5)", c.Fallback.Confidence)
	}
	if _, err := c.Fallback.CutoffTime(); err != nil {
		return err
	}
	switch c.Artifacts.Backend {
	case "badger", "redis":
	default:
		return errors.NewValidationError("ARTIFACT_BACKEND", "must be badger or redis", c.Artifacts.Backend)
	}
	return nil
}
