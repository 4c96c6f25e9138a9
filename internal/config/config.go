// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      Server                        `mapstructure:"server"`
	Auth        Auth                          `mapstructure:"auth"`
	Browser     Browser                       `mapstructure:"browser"`
	Fetch       Fetch                         `mapstructure:"fetch"`
	Pipeline    Pipeline                      `mapstructure:"pipeline"`
	Database    Database                      `mapstructure:"database"`
	Audit       Audit                         `mapstructure:"audit"`
	PubSub      PubSub                        `mapstructure:"pubsub"`
	Logging     Logging                       `mapstructure:"logging"`
	Sources     []contractor.SourceDescriptor `mapstructure:"sources"`
	Credentials map[string]Credentials        `mapstructure:"credentials"`
}

// Server controls HTTP server behavior.
type Server struct {
	Port            int `mapstructure:"port"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout_seconds"`
}

// Auth defines API authentication toggles.
type Auth struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Browser configures the headless session pool.
type Browser struct {
	PoolSize       int    `mapstructure:"pool_size"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	MaxNavigations int    `mapstructure:"max_navigations"`
	UserAgent      string `mapstructure:"user_agent"`
}

// Fetch configures the non-browser HTTP fetch path for static registry pages.
type Fetch struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// Pipeline governs batch execution and dedup behavior.
type Pipeline struct {
	Workers           int     `mapstructure:"workers"`
	DefaultTimeoutSec int     `mapstructure:"default_timeout_seconds"`
	SampleSize        int     `mapstructure:"sample_size"`
	NameSimilarity    float64 `mapstructure:"name_similarity"`
}

// Database controls the canonical contractor store.
type Database struct {
	// Driver selects the store backend: "memory" or "postgres".
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// Audit selects the raw-candidate audit sink.
type Audit struct {
	// Mode is "noop", "local", or "gcs".
	Mode      string `mapstructure:"mode"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSub holds settings for batch-completion event publishing.
type PubSub struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Logging toggles zap development features.
type Logging struct {
	Development bool `mapstructure:"development"`
}

// Credentials holds the login for one authenticated source. Values are
// expected to arrive via environment variables, not checked-in files.
type Credentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load builds a Config from disk/environment. Sources omitted from the config
// fall back to the built-in catalogue.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGGREGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("browser.pool_size", 3)
	v.SetDefault("browser.nav_timeout_seconds", 25)
	v.SetDefault("browser.max_navigations", 50)
	v.SetDefault("browser.user_agent", "contractor-aggregator/1.0")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "contractor-aggregator/1.0")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.default_timeout_seconds", 600)
	v.SetDefault("pipeline.sample_size", 5)
	v.SetDefault("pipeline.name_similarity", 0.82)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("audit.mode", "noop")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "contractor-runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.NameSimilarity <= 0 || c.Pipeline.NameSimilarity > 1 {
		return fmt.Errorf("pipeline.name_similarity must be in (0, 1]")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when database.driver is postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres")
	}
	switch c.Audit.Mode {
	case "noop":
	case "local":
		if c.Audit.LocalDir == "" {
			return fmt.Errorf("audit.local_dir must be set when audit.mode is local")
		}
	case "gcs":
		if c.Audit.GCSBucket == "" {
			return fmt.Errorf("audit.gcs_bucket must be set when audit.mode is gcs")
		}
	default:
		return fmt.Errorf("audit.mode must be noop, local, or gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout converts the browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// FetchTimeout converts the static fetch timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DefaultBatchTimeout converts the pipeline default timeout to a duration.
func (c Config) DefaultBatchTimeout() time.Duration {
	return time.Duration(c.Pipeline.DefaultTimeoutSec) * time.Second
}

// ShutdownTimeout converts the server drain timeout to a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
