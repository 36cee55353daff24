package testsupport

import (
	"os"
	"testing"

	"github.com/kelseyhightower/envconfig"

	"pacelab/internal/adapters/config"
)

// Backend names an external store an integration test needs
type Backend string

const (
	Postgres   Backend = "postgres"
	ClickHouse Backend = "clickhouse"
	Redis      Backend = "redis"
)

// requiredEnv lists the variables that must be set before a backend is tried
var requiredEnv = map[Backend][]string{
	Postgres:   {"POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"},
	ClickHouse: {"CLICKHOUSE_HOST", "CLICKHOUSE_DB"},
	Redis:      {"REDIS_HOST"},
}

// DatabaseConfigs bundles config sections required for integration tests.
type DatabaseConfigs struct {
	Postgres   config.PostgresConfig
	ClickHouse config.ClickHouseConfig
	Redis      config.RedisConfig
}

// RequireIntegration skips the test in -short mode or when the environment
// for any of the given backends is missing. Otherwise it returns the config
// sections, parsed with the same envconfig tags the application uses.
func RequireIntegration(t *testing.T, backends ...Backend) DatabaseConfigs {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	var missing []string
	for _, b := range backends {
		for _, key := range requiredEnv[b] {
			if os.Getenv(key) == "" {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}

	cfgs, err := loadDatabaseConfigs()
	if err != nil {
		t.Fatalf("failed to parse integration environment: %v", err)
	}
	return cfgs
}

func loadDatabaseConfigs() (DatabaseConfigs, error) {
	var cfgs DatabaseConfigs
	for _, section := range []interface{}{&cfgs.Postgres, &cfgs.ClickHouse, &cfgs.Redis} {
		if err := envconfig.Process("", section); err != nil {
			return cfgs, err
		}
	}
	return cfgs, nil
}
