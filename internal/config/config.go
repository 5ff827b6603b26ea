// Package config builds the process-level Config for cmd/wonopcore,
// grounded on the teacher's internal/config.Config (a yaml.v3-tagged
// struct tree) narrowed to the fields this runtime's components actually
// take: storage roots, the bus replay buffer, permission defaults, retry
// tuning, and the rate card §8 prices usage against. Fields are set via
// the teacher's functional-options pattern (Option = func(*Config)) so a
// caller can override anything the loaded YAML didn't set.
package config

import (
	"time"

	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/retry"
)

// ServerConfig configures the WebSocket reference integration of §6.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// StorageConfig configures the Session Store / Snapshot Store roots of
// §4.6.
type StorageConfig struct {
	Root          string `yaml:"root"`
	ReplayBufSize int    `yaml:"replay_buffer_size"`
}

// PermissionConfig configures the Permission Manager of §4.3.
type PermissionConfig struct {
	AllowAllInSandbox bool   `yaml:"allow_all_in_sandbox"`
	// AskTimeout is not read by permission.Manager, whose Ask always
	// waits permission.AskTimeout.
	AskTimeout        time.Duration `yaml:"ask_timeout"`
	RulesFile         string `yaml:"rules_file"`
}

// SandboxConfig configures the Sandbox Runtime of §4.4.
type SandboxConfig struct {
	Driver          string        `yaml:"driver"` // "passthrough" or "docker"
	Image           string        `yaml:"image"`
	RootDir         string        `yaml:"root_dir"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// ProviderConfig configures the default LLMProvider of §4.1/§11.
type ProviderConfig struct {
	Kind      string `yaml:"kind"` // "anthropic" or "mock"
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	RateCard  model.RateCard `yaml:"rate_card"`
}

// SweepConfig configures cmd/wonopcore's periodic maintenance sweep
// (snapshot retention, stale revert-marker cleanup).
type SweepConfig struct {
	Interval          time.Duration `yaml:"interval"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
	RevertGracePeriod time.Duration `yaml:"revert_grace_period"`
}

// Config is the top-level configuration for the wonopcore process.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Permission PermissionConfig `yaml:"permission"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Provider   ProviderConfig   `yaml:"provider"`
	Retry      retry.Config     `yaml:"retry"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

// Default returns a Config with the same baseline defaults the teacher's
// cmd/nexus ships (local storage root, in-process passthrough sandbox, a
// 300s permission-ask timeout).
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:  ":4173",
			MetricsAddr: ":9090",
		},
		Storage: StorageConfig{
			Root:          "./.wonopcode",
			ReplayBufSize: 1024,
		},
		Permission: PermissionConfig{
			AllowAllInSandbox: false,
			AskTimeout:        300 * time.Second,
		},
		Sandbox: SandboxConfig{
			Driver:          "passthrough",
			MonitorInterval: 5 * time.Second,
		},
		Provider: ProviderConfig{
			Kind:  "mock",
			Model: "claude-sonnet-4-5",
			RateCard: model.RateCard{
				InputPerMTok:  3.0,
				OutputPerMTok: 15.0,
			},
		},
		Retry: retry.DefaultConfig(),
		Sweep: SweepConfig{
			Interval:          1 * time.Hour,
			SnapshotRetention: 7 * 24 * time.Hour,
			RevertGracePeriod: 24 * time.Hour,
		},
	}
}

// Option mutates a Config in place, following the teacher's functional
// options convention (type Option func(*Config)) rather than a builder
// type.
type Option func(*Config)

// WithListenAddr overrides the WebSocket gateway's listen address.
func WithListenAddr(addr string) Option {
	return func(c *Config) { c.Server.ListenAddr = addr }
}

// WithStorageRoot overrides the on-disk storage root.
func WithStorageRoot(root string) Option {
	return func(c *Config) { c.Storage.Root = root }
}

// WithAllowAllInSandbox toggles the Permission Manager's sandbox
// fast-path.
func WithAllowAllInSandbox(v bool) Option {
	return func(c *Config) { c.Permission.AllowAllInSandbox = v }
}

// WithSandboxDriver overrides the Sandbox Runtime backend.
func WithSandboxDriver(driver string) Option {
	return func(c *Config) { c.Sandbox.Driver = driver }
}

// WithProvider overrides the provider kind, model, and API key.
func WithProvider(kind, apiModel, apiKey string) Option {
	return func(c *Config) {
		c.Provider.Kind = kind
		c.Provider.Model = apiModel
		c.Provider.APIKey = apiKey
	}
}

// Apply builds a Config from Default() plus opts, applied in order.
func Apply(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
