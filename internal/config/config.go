// Package config loads the inspector's settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/framing"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAddr is the HTTP listen address.
	DefaultAddr = ":8080"
	// DefaultRequestTimeout bounds list, read and get requests.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultToolCallTimeout bounds tools/call requests.
	DefaultToolCallTimeout = 30 * time.Second
	// DefaultMaxBackoff caps the delay between restart attempts.
	DefaultMaxBackoff = 30 * time.Second
)

// Config is the complete inspector configuration.
type Config struct {
	// Command is the MCP server program followed by its arguments.
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"` // values support ${VAR} expansion
	Dir     string            `yaml:"dir"`
	Framing string            `yaml:"framing"`

	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	Auth     AuthConfig     `yaml:"auth"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Restart  RestartConfig  `yaml:"restart"`

	// Watch lists files or directories whose changes restart the server.
	Watch []string `yaml:"watch"`
}

// AuthConfig enables bearer authentication on the HTTP API when Secret is set.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	// Audiences, when set, requires tokens to name one of them in aud. Minted
	// tokens carry the first.
	Audiences []string `yaml:"audiences"`
}

// TimeoutsConfig bounds requests to the server and its shutdown.
type TimeoutsConfig struct {
	Request  time.Duration `yaml:"request"`
	ToolCall time.Duration `yaml:"tool_call"`
	Grace    time.Duration `yaml:"grace"`
}

// RestartConfig controls the supervisor's restart policy.
type RestartConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxElapsed stops retrying a failing start after this long. Zero retries
	// until the context ends.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// envOverrides mirrors the settings that may come from the environment.
// Unset variables leave the corresponding field zero; a set variable that
// does not parse is an error.
type envOverrides struct {
	Addr            string        `env:"MCP_INSPECTOR_ADDR,strict"`
	AuthSecret      string        `env:"MCP_INSPECTOR_AUTH_SECRET,strict"`
	AuthAudiences   []string      `env:"MCP_INSPECTOR_AUTH_AUDIENCES"` // ";" separated
	LogLevel        string        `env:"MCP_INSPECTOR_LOG_LEVEL,strict"`
	Framing         string        `env:"MCP_INSPECTOR_FRAMING,strict"`
	RequestTimeout  time.Duration `env:"MCP_INSPECTOR_REQUEST_TIMEOUT,strict"`
	ToolCallTimeout time.Duration `env:"MCP_INSPECTOR_TOOL_CALL_TIMEOUT,strict"`
	GracePeriod     time.Duration `env:"MCP_INSPECTOR_GRACE_PERIOD,strict"`
}

// Default returns a Config with every default filled in and no command.
func Default() *Config {
	return &Config{
		Framing:  string(framing.ContentLength),
		Addr:     DefaultAddr,
		LogLevel: "info",
		Timeouts: TimeoutsConfig{
			Request:  DefaultRequestTimeout,
			ToolCall: DefaultToolCallTimeout,
			Grace:    process.DefaultGracePeriod,
		},
		Restart: RestartConfig{MaxBackoff: DefaultMaxBackoff},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file. The result is not
// validated; callers merge flags first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MCP_INSPECTOR_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	if env.Addr != "" {
		c.Addr = env.Addr
	}
	if env.AuthSecret != "" {
		c.Auth.Secret = env.AuthSecret
	}
	if len(env.AuthAudiences) > 0 {
		c.Auth.Audiences = env.AuthAudiences
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.Framing != "" {
		c.Framing = env.Framing
	}
	if env.RequestTimeout > 0 {
		c.Timeouts.Request = env.RequestTimeout
	}
	if env.ToolCallTimeout > 0 {
		c.Timeouts.ToolCall = env.ToolCallTimeout
	}
	if env.GracePeriod > 0 {
		c.Timeouts.Grace = env.GracePeriod
	}
	return nil
}

// Validate checks config correctness.
func (c *Config) Validate() error {
	if err := process.Command(c.Command).Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if _, err := framing.ParseKind(c.Framing); err != nil {
		return fmt.Errorf("framing: %w", err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Timeouts.Request < 0 || c.Timeouts.ToolCall < 0 || c.Timeouts.Grace < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Restart.MaxBackoff < 0 || c.Restart.MaxElapsed < 0 {
		return fmt.Errorf("restart durations must not be negative")
	}
	for k := range c.Env {
		if k == "" || strings.ContainsRune(k, '=') {
			return fmt.Errorf("invalid env name %q", k)
		}
	}
	for i, p := range c.Watch {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watch #%d: path cannot be empty", i+1)
		}
	}
	return nil
}

// ProcessCommand returns the server command.
func (c *Config) ProcessCommand() process.Command {
	return process.Command(c.Command)
}

// FramingKind returns the parsed framing, defaulting to content-length.
func (c *Config) FramingKind() framing.Kind {
	k, err := framing.ParseKind(c.Framing)
	if err != nil {
		return framing.ContentLength
	}
	return k
}

// EnvList renders Env as sorted KEY=VALUE pairs with ${VAR} references
// expanded against the inspector's own environment.
func (c *Config) EnvList() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+os.ExpandEnv(c.Env[k]))
	}
	return out
}

// ParseLogLevel maps debug, info, warn and error onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}
