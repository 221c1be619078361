// Package config provides configuration management for the proxy.
// All settings come from the environment (optionally via a .env file);
// there is no process-wide mutable configuration state — the loaded
// struct is passed explicitly to each component at construction time.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ghproxy/internal/core"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	// MasterKey, when set, requires clients to present it as a bearer token.
	MasterKey string
}

// UpstreamConfig holds the upstream API settings
type UpstreamConfig struct {
	BaseURL string
	// Token is the credential attached to every upstream call. Required.
	Token string
}

// AuditConfig holds audit log and publisher settings
type AuditConfig struct {
	// RepoPath is the working tree that tracks the log artifact.
	RepoPath string
	// LogPath is the log artifact path, relative to RepoPath.
	LogPath string
	// Branch is the single designated remote branch for publishes.
	Branch string
	Remote string
	Author string
	Email  string

	BufferSize    int
	FlushInterval time.Duration
}

// MetricsConfig holds Prometheus exposure settings
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present. Missing required settings
// are a configuration error surfaced before any component is built.
func Load() (*Config, error) {
	// Optional; absence of a .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("GHPROXY_PORT", "8080")
	v.SetDefault("GITHUB_BASE_URL", "https://api.github.com")
	v.SetDefault("AUDIT_REPO_PATH", ".")
	v.SetDefault("AUDIT_LOG_PATH", "app.log")
	v.SetDefault("AUDIT_BRANCH", "main")
	v.SetDefault("AUDIT_REMOTE", "origin")
	v.SetDefault("AUDIT_AUTHOR", "ghproxy")
	v.SetDefault("AUDIT_EMAIL", "ghproxy@localhost")
	v.SetDefault("AUDIT_BUFFER_SIZE", 1000)
	v.SetDefault("AUDIT_FLUSH_INTERVAL", "5s")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_ENDPOINT", "/metrics")

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("GHPROXY_PORT"),
			MasterKey: v.GetString("GHPROXY_MASTER_KEY"),
		},
		Upstream: UpstreamConfig{
			BaseURL: v.GetString("GITHUB_BASE_URL"),
			Token:   v.GetString("GITHUB_TOKEN"),
		},
		Audit: AuditConfig{
			RepoPath:      v.GetString("AUDIT_REPO_PATH"),
			LogPath:       v.GetString("AUDIT_LOG_PATH"),
			Branch:        v.GetString("AUDIT_BRANCH"),
			Remote:        v.GetString("AUDIT_REMOTE"),
			Author:        v.GetString("AUDIT_AUTHOR"),
			Email:         v.GetString("AUDIT_EMAIL"),
			BufferSize:    v.GetInt("AUDIT_BUFFER_SIZE"),
			FlushInterval: v.GetDuration("AUDIT_FLUSH_INTERVAL"),
		},
		Metrics: MetricsConfig{
			Enabled:  v.GetBool("METRICS_ENABLED"),
			Endpoint: v.GetString("METRICS_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the settings required at construction time.
func (c *Config) validate() error {
	switch {
	case c.Upstream.Token == "":
		return core.NewConfigurationError("GITHUB_TOKEN is required")
	case c.Upstream.BaseURL == "":
		return core.NewConfigurationError("GITHUB_BASE_URL must not be empty")
	case c.Audit.Branch == "":
		return core.NewConfigurationError("AUDIT_BRANCH must not be empty")
	case c.Audit.LogPath == "":
		return core.NewConfigurationError("AUDIT_LOG_PATH must not be empty")
	}
	return nil
}
