// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Purser components.
//
// Configuration is loaded from a single file specified by:
//   - PURSER_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Purser.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Web configures the onboarding web server.
	Web WebConfig `yaml:"web"`

	// Engine configures the connection to the Telegram engine process.
	Engine EngineConfig `yaml:"engine"`

	// Hosting configures hosting-provider policy.
	Hosting HostingConfig `yaml:"hosting"`

	// Geolocation configures the best-effort IP geolocation lookup used
	// in authorization confirmation prompts.
	Geolocation GeolocationConfig `yaml:"geolocation"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths       *PathsConfig       `yaml:"paths,omitempty"`
	Web         *WebConfig         `yaml:"web,omitempty"`
	Engine      *EngineConfig      `yaml:"engine,omitempty"`
	Hosting     *HostingConfig     `yaml:"hosting,omitempty"`
	Geolocation *GeolocationConfig `yaml:"geolocation,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Purser data.
	Root string `yaml:"root"`

	// State is where the account store database lives.
	State string `yaml:"state"`
}

// WebConfig configures the onboarding web server.
type WebConfig struct {
	// ListenAddress is the host:port the web server binds to.
	// Default: 127.0.0.1:8080
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout is how long to wait for in-flight requests
	// during graceful shutdown. Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// SealRecipients are age public keys (age1... format) that
	// stored credentials and session exports are encrypted to.
	// When empty, a keypair is generated on first start and its
	// private key is stored in the state directory.
	SealRecipients []string `yaml:"seal_recipients"`
}

// EngineConfig configures the connection to the Telegram engine
// process, which owns the MTProto sessions.
type EngineConfig struct {
	// SocketPath is the Unix socket path for the engine.
	// Default: /run/purser/engine.sock
	SocketPath string `yaml:"socket_path"`

	// DialTimeout is how long to wait for the socket to accept.
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout"`
}

// HostingConfig configures hosting-provider policy.
type HostingConfig struct {
	// SingleAccount restricts the installation to one authorized
	// account. When true, the web server refuses to add a second
	// account. Default: false
	SingleAccount bool `yaml:"single_account"`
}

// GeolocationConfig configures the best-effort IP geolocation lookup.
type GeolocationConfig struct {
	// Endpoint is the lookup URL template. The literal token {ip} is
	// replaced with the requester's IP address.
	// Default: https://freeipapi.com/api/json/{ip}
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds the lookup request. Lookup failures never block
	// authorization, they only degrade the confirmation prompt.
	// Default: 5s
	Timeout string `yaml:"timeout"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "purser")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Web: WebConfig{
			ListenAddress:   "127.0.0.1:8080",
			ShutdownTimeout: "10s",
		},
		Engine: EngineConfig{
			SocketPath:  "/run/purser/engine.sock",
			DialTimeout: "5s",
		},
		Hosting: HostingConfig{
			SingleAccount: false,
		},
		Geolocation: GeolocationConfig{
			Endpoint: "https://freeipapi.com/api/json/{ip}",
			Timeout:  "5s",
		},
	}
}

// Load loads configuration from the PURSER_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if PURSER_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PURSER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PURSER_CONFIG environment variable not set; " +
			"set it to the path of your purser.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Web != nil {
		if overrides.Web.ListenAddress != "" {
			c.Web.ListenAddress = overrides.Web.ListenAddress
		}
		if overrides.Web.ShutdownTimeout != "" {
			c.Web.ShutdownTimeout = overrides.Web.ShutdownTimeout
		}
		if len(overrides.Web.SealRecipients) > 0 {
			c.Web.SealRecipients = overrides.Web.SealRecipients
		}
	}

	if overrides.Engine != nil {
		if overrides.Engine.SocketPath != "" {
			c.Engine.SocketPath = overrides.Engine.SocketPath
		}
		if overrides.Engine.DialTimeout != "" {
			c.Engine.DialTimeout = overrides.Engine.DialTimeout
		}
	}

	if overrides.Hosting != nil {
		// SingleAccount is a bool, so we always apply it from overrides.
		c.Hosting.SingleAccount = overrides.Hosting.SingleAccount
	}

	if overrides.Geolocation != nil {
		if overrides.Geolocation.Endpoint != "" {
			c.Geolocation.Endpoint = overrides.Geolocation.Endpoint
		}
		if overrides.Geolocation.Timeout != "" {
			c.Geolocation.Timeout = overrides.Geolocation.Timeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PURSER_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PURSER_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Engine.SocketPath = expandVars(c.Engine.SocketPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Web.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("web.listen_address is required"))
	}

	if c.Engine.SocketPath == "" {
		errs = append(errs, fmt.Errorf("engine.socket_path is required"))
	}

	for name, value := range map[string]string{
		"web.shutdown_timeout": c.Web.ShutdownTimeout,
		"engine.dial_timeout":  c.Engine.DialTimeout,
		"geolocation.timeout":  c.Geolocation.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Duration parses a duration config string, falling back to the given
// default when the string is empty. Call Validate first; this panics
// on malformed values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("config: malformed duration %q passed Validate", value))
	}
	return parsed
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
