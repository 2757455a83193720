package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadgen.yaml")
	content := `
url: https://ingest.example.com/events
rps: 200
duration: 5m
duplicateRate: 0.25
tenants: [acme, globex]
apiKeys:
  acme: k1
  globex: k2
timeout: 2s
concurrency: 8
output:
  jsonFile: out.json
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ingest.example.com/events", cfg.URL)
	assert.Equal(t, 200, cfg.RPS)
	assert.Equal(t, 5*time.Minute, cfg.Duration.Std())
	assert.Equal(t, 0.25, cfg.DuplicateRate)
	assert.Equal(t, DefaultBadRate, cfg.BadRate, "unset fields keep defaults")
	assert.Equal(t, []string{"acme", "globex"}, cfg.Tenants)
	assert.Equal(t, "k1", cfg.APIKeys["acme"])
	assert.Equal(t, "key_a", cfg.APIKeys["tenant_a"], "file keys merge into defaults")
	assert.Equal(t, 2*time.Second, cfg.Timeout.Std())
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "out.json", cfg.Output.JSONFile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadgen.json")
	content := `{"rps": 10, "duration": "30s", "badRate": 0, "seed": 42}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RPS)
	assert.Equal(t, 30*time.Second, cfg.Duration.Std())
	assert.Equal(t, 0.0, cfg.BadRate)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, DefaultURL, cfg.URL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Parse([]byte(`{"rps": "fast"}`), "bad.json")
	assert.ErrorContains(t, err, "failed to parse JSON config")

	_, err = Parse([]byte("rps: [1"), "bad.yml")
	assert.ErrorContains(t, err, "failed to parse YAML config")

	_, err = Parse([]byte("duration: soon"), "bad.yaml")
	assert.Error(t, err)
}
