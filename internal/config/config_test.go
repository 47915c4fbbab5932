package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv("BASE_URL", "https://example.test")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "legaldocml-crawler/1.0", cfg.UserAgent)
	assert.Equal(t, 500, cfg.RateLimitMs)
	assert.Equal(t, "dual", cfg.StorageType)
	assert.Equal(t, 7, cfg.ScheduledDaysBack)
	assert.Equal(t, 2, cfg.BulkMaxConcurrentOperations)
}

func TestLoadMissingRequiredFieldsFails(t *testing.T) {
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStorageType(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("STORAGE_TYPE", "memcached")

	_, err := Load()
	assert.Error(t, err)
}

func TestKindAcceptsAllKnownValues(t *testing.T) {
	for _, v := range []string{"archive", "search", "dual"} {
		cfg := &Config{StorageType: v}

		kind, err := cfg.Kind()
		require.NoError(t, err)
		assert.Equal(t, StorageKind(v), kind)
	}
}
