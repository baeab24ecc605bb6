package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/org/armada-harness/pkg/armada"
)

// Config describes one harness run: which environment to drive, where
// the armada binary lives, and how long the run may take.
type Config struct {
	// Environment is the environment (and controller) name.
	Environment string `json:"environment"`
	// Kind selects the descriptor layout: "legacy" or "modern".
	// Empty defaults to modern.
	Kind string `json:"kind,omitempty"`
	// Home is the armada data directory. Empty picks a directory under
	// the user's home.
	Home string `json:"home,omitempty"`
	// Binary is the path to the armada binary. Empty means PATH lookup.
	Binary string `json:"binary,omitempty"`
	// Version pins the tool version. Empty probes the binary.
	Version string `json:"version,omitempty"`
	// RunTimeout bounds the whole run, e.g. "45m". Operations past it
	// fail fast instead of starting.
	RunTimeout string `json:"run-timeout,omitempty"`
	// Provider holds the provider configuration (type, region,
	// credentials and friends).
	Provider map[string]interface{} `json:"provider,omitempty"`
}

// LoadConfig reads and validates a harness config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Environment == "" {
		return nil, fmt.Errorf("config %s: environment name is required", path)
	}
	if _, err := cfg.kind(); err != nil {
		return nil, err
	}
	if cfg.RunTimeout != "" {
		if _, err := time.ParseDuration(cfg.RunTimeout); err != nil {
			return nil, fmt.Errorf("config %s: bad run-timeout: %w", path, err)
		}
	}
	return &cfg, nil
}

func (c *Config) kind() (armada.EnvironmentKind, error) {
	switch c.Kind {
	case "", "modern":
		return armada.ModernEnvironment, nil
	case "legacy":
		return armada.LegacyEnvironment, nil
	default:
		return 0, fmt.Errorf("unknown environment kind %q", c.Kind)
	}
}

func (c *Config) home() (string, error) {
	if c.Home != "" {
		return c.Home, nil
	}
	base, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to pick a home directory: %w", err)
	}
	return filepath.Join(base, ".armada-harness", c.Environment), nil
}

func (c *Config) softDeadline() (time.Time, error) {
	if c.RunTimeout == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(c.RunTimeout)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(d), nil
}

// newEnvironment builds the environment descriptor the config names.
func (c *Config) newEnvironment() (*armada.Environment, error) {
	kind, err := c.kind()
	if err != nil {
		return nil, err
	}
	home, err := c.home()
	if err != nil {
		return nil, err
	}
	return armada.NewEnvironment(c.Environment, kind, c.Provider, home), nil
}

// buildClient assembles a client from the loaded config, probing the
// binary's version when the config does not pin one.
func buildClient(ctx context.Context, cfg *Config) (*armada.Client, error) {
	env, err := cfg.newEnvironment()
	if err != nil {
		return nil, err
	}
	deadline, err := cfg.softDeadline()
	if err != nil {
		return nil, err
	}
	return armada.ClientFromConfig(ctx, env, armada.ClientConfig{
		Version:      cfg.Version,
		FullPath:     cfg.Binary,
		Debug:        debugLogs,
		SoftDeadline: deadline,
		Log:          log,
		Progress:     os.Stdout,
	})
}

// loadClient is the common preamble of the run subcommands.
func loadClient(ctx context.Context) (*armada.Client, *Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
