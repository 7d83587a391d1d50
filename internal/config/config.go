// Package config loads the rootlsp configuration file.
//
// Configuration is TOML. Every field has a working default tuned for
// Steep (a Ruby type checker with a language-server mode), so an empty
// or absent file still yields a usable setup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root of the rootlsp.toml file.
type Config struct {
	// LogLevel is "debug", "info", or "error".
	LogLevel string `toml:"log_level"`

	// Languages are the language IDs whose documents are synced to servers.
	Languages []string `toml:"languages"`

	Server     Server     `toml:"server"`
	Enablement Enablement `toml:"enablement"`
	Watch      Watch      `toml:"watch"`
}

// Server describes how to launch the language server.
type Server struct {
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`

	// HandshakeTimeoutSeconds bounds the initialize and shutdown requests.
	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds"`
}

// Enablement decides which workspace folders get a server.
type Enablement struct {
	// Manifest is a file that must exist at the folder root for the
	// folder to be enabled. Empty enables every folder.
	Manifest string `toml:"manifest"`
}

// Watch configures the per-folder file watchers.
type Watch struct {
	// Globs are matched against the base name of changed files.
	Globs []string `toml:"globs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Languages: []string{"ruby"},
		Server: Server{
			Command:                 "steep",
			Args:                    []string{"langserver"},
			HandshakeTimeoutSeconds: 15,
		},
		Enablement: Enablement{
			Manifest: "Steepfile",
		},
		Watch: Watch{
			Globs: []string{"*.rb", "*.rbs", "Steepfile"},
		},
	}
}

// Load reads the configuration from path, filling unset fields with
// defaults. An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Command == "" {
		return errors.New("server.command must not be empty")
	}
	if c.Server.HandshakeTimeoutSeconds < 0 {
		return errors.New("server.handshake_timeout_seconds must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if len(c.Languages) == 0 {
		return errors.New("languages must not be empty")
	}
	return nil
}

// HandshakeTimeout returns the configured handshake bound as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Server.HandshakeTimeoutSeconds) * time.Second
}

// SupportedLanguage reports whether documents of the language are synced.
func (c *Config) SupportedLanguage(languageID string) bool {
	for _, l := range c.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}
