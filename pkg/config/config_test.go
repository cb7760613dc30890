package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

func TestNewConfigIsValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"no pools", func(c *Config) { c.Pools = nil }},
		{"pool without name", func(c *Config) { c.Pools[0].Name = "" }},
		{"pool without kind", func(c *Config) { c.Pools[0].Kind = "" }},
		{"zero max count", func(c *Config) { c.Pools[0].MaxCount = 0 }},
		{"negative timeout", func(c *Config) { c.Pools[0].AcquireTimeout = -time.Second }},
		{"unknown isolation", func(c *Config) { c.Pools[0].DefaultIsolation = "eventual" }},
		{"duplicate pool", func(c *Config) { c.Pools = append(c.Pools, c.Pools[0]) }},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
		})
	}
}

func TestLoadConfigWithEnvSubstitution(t *testing.T) {
	t.Setenv("TIDEPOOL_TEST_LEVEL", "debug")
	t.Setenv("TIDEPOOL_TEST_MAX", "3")

	path := filepath.Join(t.TempDir(), "tidepool.yaml")
	content := `
name: test-service
pools:
  - name: sessions
    kind: kv
    max_count: ${TIDEPOOL_TEST_MAX}
    acquire_timeout: 250ms
  - name: jobs
    kind: stack
    max_count: 1
    default_isolation: serializable
    default_read_only: true
  - name: events
    kind: timeseries
    max_count: 2
logging:
  level: ${TIDEPOOL_TEST_LEVEL}
  encoding: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-service", cfg.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Encoding)
	assert.True(t, cfg.Metrics.Enabled, "unset sections keep their defaults")
	require.Len(t, cfg.Pools, 3)

	sessions, ok := cfg.Pool("sessions")
	require.True(t, ok)
	assert.Equal(t, 3, sessions.MaxCount)
	assert.Equal(t, 250*time.Millisecond, sessions.AcquireTimeout)
	assert.Equal(t, storage.KindKeyValue, sessions.StorageKind())
	assert.Len(t, sessions.PoolOptions(), 2)

	jobs, ok := cfg.Pool("jobs")
	require.True(t, ok)
	opts, err := jobs.TxnOptions()
	require.NoError(t, err)
	assert.Equal(t, storage.TxnOptions{IsolationLevel: storage.LevelSerializable, ReadOnly: true}, opts)
	assert.Len(t, jobs.PoolOptions(), 1)

	events, ok := cfg.Pool("events")
	require.True(t, ok)
	assert.True(t, storage.IsCustom(events.StorageKind()))

	_, ok = cfg.Pool("missing")
	assert.False(t, ok)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools: [this is: not valid"), 0o600))
	_, err = LoadConfig(path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools:\n  - name: p\n    kind: kv\n    max_count: 0\n"), 0o600))
	_, err = LoadConfig(path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Pools[0].AcquireTimeout = 2 * time.Second
	cfg.Pools[0].DefaultIsolation = "snapshot"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TIDEPOOL_A", "x")
	assert.Equal(t, "x-", substituteEnvVars("${TIDEPOOL_A}-${TIDEPOOL_UNSET_VAR}"))
	assert.Equal(t, "${unterminated", substituteEnvVars("${unterminated"))
}
