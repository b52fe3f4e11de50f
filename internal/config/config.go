// Package config loads previewd configuration from a YAML file with
// environment-variable overrides for tokens and deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where previewd looks for its config when --config is not
// given.
const DefaultPath = "previewd.yaml"

// Sandbox holds provider-side allocation defaults.
type Sandbox struct {
	// Region is the provider region machines are placed in.
	Region string `yaml:"region"`

	// RAMMB is the machine memory allocation in megabytes.
	RAMMB int `yaml:"ram_mb"`

	// CPUs is the number of shared CPUs per machine.
	CPUs int `yaml:"cpus"`

	// BootTimeout bounds the combined clone+install+boot sequence.
	BootTimeout time.Duration `yaml:"boot_timeout"`
}

// Poll holds client-side status polling defaults.
type Poll struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Config is the full previewd configuration.
type Config struct {
	// ListenAddr is the HTTP API bind address for previewd serve.
	ListenAddr string `yaml:"listen_addr"`

	// DatabasePath is the SQLite file backing sessions and the durable
	// preview registry. ":memory:" is accepted for tests.
	DatabasePath string `yaml:"database_path"`

	// NATSURL enables event publishing when set; empty means events are
	// dropped (nop publisher).
	NATSURL string `yaml:"nats_url"`

	// FlyAPIToken authenticates against the Fly Machines API.
	// Overridden by FLY_API_TOKEN.
	FlyAPIToken string `yaml:"fly_api_token"`

	// FlyOrg is the Fly organization apps are created under.
	FlyOrg string `yaml:"fly_org"`

	// GitHubToken is the default repository credential. Overridden by
	// GITHUB_TOKEN. Per-request credentials take precedence over this.
	GitHubToken string `yaml:"github_token"`

	// DurableRegistry selects the SQLite-backed preview registry instead
	// of the in-memory one. The in-memory registry is the default and
	// does not survive restarts.
	DurableRegistry bool `yaml:"durable_registry"`

	Sandbox Sandbox `yaml:"sandbox"`
	Poll    Poll    `yaml:"poll"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8080",
		DatabasePath: ".previewd/previewd.db",
		Sandbox: Sandbox{
			Region:      "iad",
			RAMMB:       1024,
			CPUs:        1,
			BootTimeout: 120 * time.Second,
		},
		Poll: Poll{
			Interval:    5 * time.Second,
			MaxAttempts: 60,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides. A malformed
// file is an error; a missing one is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLY_API_TOKEN"); v != "" {
		c.FlyAPIToken = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("PREVIEWD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("PREVIEWD_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("PREVIEWD_NATS_URL"); v != "" {
		c.NATSURL = v
	}
	if v := os.Getenv("PREVIEWD_REGION"); v != "" {
		c.Sandbox.Region = v
	}
	if v := os.Getenv("PREVIEWD_BOOT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sandbox.BootTimeout = d
		}
	}
	if v := os.Getenv("PREVIEWD_RAM_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sandbox.RAMMB = n
		}
	}
}

func (c *Config) validate() error {
	if c.Sandbox.RAMMB <= 0 {
		return fmt.Errorf("sandbox.ram_mb must be positive, got %d", c.Sandbox.RAMMB)
	}
	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got %d", c.Sandbox.CPUs)
	}
	if c.Sandbox.BootTimeout <= 0 {
		return fmt.Errorf("sandbox.boot_timeout must be positive, got %v", c.Sandbox.BootTimeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts)
	}
	return nil
}
