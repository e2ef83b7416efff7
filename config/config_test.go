package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "general:\n  log_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, ":10001", cfg.Server.Address)
	assert.Equal(t, 2000, cfg.Session.MaxQueryLength)
	assert.Equal(t, 240, cfg.Session.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Session.SearchTimeout)
	assert.Equal(t, 3, cfg.Agents.MaxConcurrentCountries)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Routing.Model("parsing"))
	assert.Equal(t, 10, cfg.Intent.MaxCountries)
	assert.False(t, cfg.Storage.Postgres.Enabled())
	assert.False(t, cfg.Storage.S3.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SENTISCOPE_AGENTS_MAX_CONCURRENT_COUNTRIES", "5")
	t.Setenv("SENTISCOPE_LLM_ROUTING_SYNTHESIS", "gpt-4o")
	cfg, err := Load(writeConfig(t, "sources:\n  provider: serper\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Agents.MaxConcurrentCountries)
	assert.Equal(t, "gpt-4o", cfg.LLM.Routing.Model("synthesis"))
	assert.Equal(t, "serper", cfg.Sources.Provider)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []string{
		"agents:\n  max_concurrent_countries: 0\n",
		"session:\n  search_timeout: 10m\n",
		"storage:\n  s3:\n    endpoint: localhost:9000\n",
		"llm:\n  temperature: 3\n",
	}
	for _, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, body)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "sentiscope", SSLMode: "disable"}
	assert.True(t, p.Enabled())
	assert.Equal(t, "postgres://u:p@db:5432/sentiscope?sslmode=disable", p.DSN())
	assert.Equal(t, "postgres://x", PostgresConfig{URL: "postgres://x"}.DSN())
}
