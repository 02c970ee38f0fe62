// Package config loads repoctx configuration from defaults, an optional
// YAML or TOML file, and REPOCTX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/repoctx/internal/fetch"
	"github.com/fyrsmithlabs/repoctx/internal/filter"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/scheduler"
	"github.com/fyrsmithlabs/repoctx/internal/secrets"
	"github.com/fyrsmithlabs/repoctx/internal/telemetry"
)

// Config is the complete repoctx configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Pipeline  PipelineConfig   `koanf:"pipeline"`
	Fetch     FetchConfig      `koanf:"fetch"`
	Filter    filter.Config    `koanf:"filter"`
	Scrub     secrets.Config   `koanf:"scrub"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// ServerConfig holds daemon HTTP settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// PipelineConfig holds per-run settings.
type PipelineConfig struct {
	BatchSize   int      `koanf:"batch_size"`
	PageTimeout Duration `koanf:"page_timeout"`
	OutputDir   string   `koanf:"output_dir"`
	// RequestsPerSecond paces outbound fetches. 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// FetchConfig selects and tunes the fetch backend.
type FetchConfig struct {
	Backend   string   `koanf:"backend"`
	UserAgent string   `koanf:"user_agent"`
	Timeout   Duration `koanf:"timeout"`
	// GitHubToken authenticates the github and git backends and raw fetches
	// made through them.
	GitHubToken  Secret `koanf:"github_token"`
	APIBaseURL   string `koanf:"api_base_url"`
	MaxBodyBytes int64  `koanf:"max_body_bytes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Pipeline: PipelineConfig{
			BatchSize:   scheduler.DefaultBatchSize,
			PageTimeout: Duration(30 * time.Second),
			OutputDir:   "static",
			Burst:       1,
		},
		Fetch: FetchConfig{
			Backend:      fetch.BackendHTTP,
			UserAgent:    fetch.DefaultUserAgent,
			MaxBodyBytes: fetch.DefaultMaxBodyBytes,
		},
		Filter:    filter.DefaultConfig(),
		Scrub:     secrets.DefaultConfig(),
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive"))
	}

	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be at least 1, got %d", c.Pipeline.BatchSize))
	}
	if c.Pipeline.PageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.page_timeout must be positive"))
	}
	if strings.TrimSpace(c.Pipeline.OutputDir) == "" {
		errs = append(errs, fmt.Errorf("pipeline.output_dir is required"))
	}
	if c.Pipeline.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("pipeline.requests_per_second cannot be negative"))
	}
	if c.Pipeline.RequestsPerSecond > 0 && c.Pipeline.Burst < 1 {
		errs = append(errs, fmt.Errorf("pipeline.burst must be at least 1 when pacing is enabled"))
	}

	switch strings.ToLower(c.Fetch.Backend) {
	case fetch.BackendHTTP, fetch.BackendGitHub, fetch.BackendGit:
	default:
		errs = append(errs, fmt.Errorf("fetch.backend must be one of http, github, git; got %q", c.Fetch.Backend))
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_body_bytes must be positive"))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout cannot be negative"))
	}

	if _, err := filter.New(c.Filter); err != nil {
		errs = append(errs, fmt.Errorf("filter: %w", err))
	}
	if err := c.Scrub.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scrub: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// FetchOptions translates the fetch section into provider options.
func (c *Config) FetchOptions() fetch.Options {
	token := c.Fetch.GitHubToken.Value()
	return fetch.Options{
		Backend:      c.Fetch.Backend,
		UserAgent:    c.Fetch.UserAgent,
		MaxBodyBytes: c.Fetch.MaxBodyBytes,
		HTTP: fetch.HTTPOptions{
			Timeout: c.Fetch.Timeout.Duration(),
		},
		GitHub: fetch.GitHubOptions{
			Token:      token,
			APIBaseURL: c.Fetch.APIBaseURL,
		},
		Git: fetch.GitOptions{
			Token:        token,
			MaxBodyBytes: c.Fetch.MaxBodyBytes,
		},
	}
}
