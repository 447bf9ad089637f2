package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cafepos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8765, cfg.HTTP.Port)
	assert.Equal(t, DriverBadger, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Orders.Retry().Attempts)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeFile(t, `
http:
  port: 9000
store:
  driver: memory
  path: ""
orders:
  tax_rate: 0.08
  express_completion: true
  retry_backoff: 25ms
tracing:
  exporter: stdout
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Orders.ExpressCompletion)
	assert.Equal(t, "0.08", cfg.Orders.Rate().String())
	assert.Equal(t, 25*time.Millisecond, cfg.Orders.Retry().Backoff)
	assert.Equal(t, 5, cfg.Orders.MaxCommitRetries, "unset keys keep defaults")
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestPortEnvOverride(t *testing.T) {
	t.Setenv("PORT", "7000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTP.Port)

	t.Setenv("PORT", "abc")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Port = 0
	cfg.Store.Driver = "postgres"
	cfg.Orders.TaxRate = -1
	cfg.Orders.MaxCommitRetries = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, fragment := range []string{"http.port", "store.driver", "tax_rate", "max_commit_retries", "log.level"} {
		assert.Contains(t, err.Error(), fragment)
	}

	cfg = Default()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())
	cfg.Store.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "http: [broken"))
	assert.Error(t, err)
}
