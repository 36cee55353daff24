package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/pkg/errors"
)

func validConfig() *Config {
	return &Config{
		Artifacts: ArtifactConfig{Backend: "badger", Path: "./data/artifacts"},
		Model: ModelConfig{
			ClusterCount: 3,
			Restarts:     10,
			MinSamples:   5,
		},
		Fallback: FallbackConfig{
			Cutoff:       "2024-01-01",
			LabelBefore:  "walk",
			LabelAfter:   "run",
			DefaultLabel: "mixed",
			Confidence:   0.4,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"redis backend", func(c *Config) { c.Artifacts.Backend = "redis" }, false},
		{"zero clusters", func(c *Config) { c.Model.ClusterCount = 0 }, true},
		{"zero restarts", func(c *Config) { c.Model.Restarts = 0 }, true},
		{"fewer samples than clusters", func(c *Config) { c.Model.MinSamples = 2 }, true},
		{"negative fallback confidence", func(c *Config) { c.Fallback.Confidence = -0.1 }, true},
		{"fallback confidence too high", func(c *Config) { c.Fallback.Confidence = 0.5 }, true},
		{"bad cutoff", func(c *Config) { c.Fallback.Cutoff = "01/01/2024" }, true},
		{"unknown backend", func(c *Config) { c.Artifacts.Backend = "s3" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFallbackConfig_CutoffTime(t *testing.T) {
	cutoff, err := FallbackConfig{Cutoff: "2024-03-15"}.CutoffTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), cutoff)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_USER", "pacelab")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "pacelab")
	t.Setenv("MODEL_CLUSTER_COUNT", "2")
	t.Setenv("MODEL_LABELS", "run,walk")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Model.ClusterCount)
	assert.Equal(t, []string{"run", "walk"}, cfg.Model.Labels)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "badger", cfg.Artifacts.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Model.TrainingTimeout)
	assert.Equal(t, "host=localhost port=5432 user=pacelab password=secret dbname=pacelab sslmode=disable", cfg.Postgres.DSN())
}
