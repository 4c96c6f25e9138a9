package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/registry"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 3, cfg.Browser.PoolSize)
	require.Equal(t, 50, cfg.Browser.MaxNavigations)
	require.Equal(t, 4, cfg.Pipeline.Workers)
	require.Equal(t, 0.82, cfg.Pipeline.NameSimilarity)
	require.Equal(t, "memory", cfg.Database.Driver)
	require.Equal(t, "noop", cfg.Audit.Mode)
	require.False(t, cfg.PubSub.Enabled)
	require.Equal(t, 25*time.Second, cfg.NavTimeout())
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 10*time.Minute, cfg.DefaultBatchTimeout())
	require.Equal(t, 15*time.Second, cfg.ShutdownTimeout())

	require.NotEmpty(t, cfg.Sources, "the built-in catalogue backstops an empty config")
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
pipeline:
  workers: 8
  name_similarity: 0.9
database:
  driver: postgres
  dsn: postgres://app@localhost:5432/contractors
audit:
  mode: local
  local_dir: /tmp/audit
sources:
  - id: custom-board
    category: public
    url_template: https://example.gov/search?city={city}
    locator: registry-html
credentials:
  members-directory:
    username: ops@example.com
    password: hunter2
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, 8, cfg.Pipeline.Workers)
	require.Equal(t, 0.9, cfg.Pipeline.NameSimilarity)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "local", cfg.Audit.Mode)

	require.Len(t, cfg.Sources, 1, "explicit sources replace the catalogue")
	require.Equal(t, "custom-board", cfg.Sources[0].ID)
	require.Equal(t, contractor.CategoryPublicRegistry, cfg.Sources[0].Category)
	require.Equal(t, contractor.LocatorRegistryHTML, cfg.Sources[0].Locator)

	require.Equal(t, "ops@example.com", cfg.Credentials["members-directory"].Username)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero pool", func(c *Config) { c.Browser.PoolSize = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"similarity too high", func(c *Config) { c.Pipeline.NameSimilarity = 1.5 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"unknown audit mode", func(c *Config) { c.Audit.Mode = "s3" }},
		{"local audit without dir", func(c *Config) { c.Audit.Mode = "local" }},
		{"gcs audit without bucket", func(c *Config) { c.Audit.Mode = "gcs" }},
		{"pubsub without project", func(c *Config) { c.PubSub.Enabled = true }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultSourcesAreValid(t *testing.T) {
	descs := DefaultSources()
	r, err := registry.New(descs)
	require.NoError(t, err)
	require.Equal(t, len(descs), r.Len())

	// Every concrete category has at least one source in the catalogue.
	for _, cat := range contractor.Categories() {
		sources, err := r.SourcesFor(cat)
		require.NoError(t, err)
		require.NotEmptyf(t, sources, "category %s has no sources", cat)
	}
}
