package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 4, cfg.Pipeline.Concurrency)
	require.Equal(t, "url", cfg.Pipeline.DedupScope)
	require.Equal(t, 30, cfg.Fetch.TimeoutSeconds)
	require.Equal(t, "memory", cfg.DB.Provider)
	require.Equal(t, "seen_messages", cfg.DB.MessageTable)
	require.Equal(t, "seen_reports", cfg.DB.ReportTable)
	require.Equal(t, "noop", cfg.Blob.Provider)
	require.Equal(t, "file", cfg.Source.Provider)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
pipeline:
  concurrency: 2
  dedup_scope: host
db:
  provider: postgres
  dsn: postgres://localhost/reportwatch
source:
  provider: pubsub
  project_id: watch-project
  subscription_id: alerts-sub
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Pipeline.Concurrency)
	require.Equal(t, "host", cfg.Pipeline.DedupScope)
	require.Equal(t, "postgres", cfg.DB.Provider)
	require.Equal(t, "alerts-sub", cfg.Source.SubscriptionID)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{name: "bad dedup scope", mutate: func(c *Config) { c.Pipeline.DedupScope = "path" }},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 }},
		{name: "unknown db provider", mutate: func(c *Config) { c.DB.Provider = "mysql" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DB.Provider = "postgres"; c.DB.DSN = "" }},
		{name: "local blob without dir", mutate: func(c *Config) { c.Blob.Provider = "local" }},
		{name: "gcs blob without bucket", mutate: func(c *Config) { c.Blob.Provider = "gcs" }},
		{name: "unknown source provider", mutate: func(c *Config) { c.Source.Provider = "imap" }},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
