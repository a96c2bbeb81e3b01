package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = 8065
	DefaultStatusPort = 8066
)

type Config struct {
	Server       ServerConfig       `yaml:"server" envPrefix:"ECHO_RELAY_"`
	Status       StatusConfig       `yaml:"status" envPrefix:"ECHO_RELAY_STATUS_"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" envPrefix:"ECHO_RELAY_ORCHESTRATOR_"`
	Log          LogConfig          `yaml:"log" envPrefix:"ECHO_RELAY_LOG_"`
	Tracing      TracingConfig      `yaml:"tracing" envPrefix:"ECHO_RELAY_TRACING_"`
}

type ServerConfig struct {
	Host   string `yaml:"host" env:"HOST"`
	Port   int    `yaml:"port" env:"PORT"`
	Silent bool   `yaml:"silent" env:"SILENT"`
	// IdleTimeout ends the session after this long without players.
	// Zero disables the timeout.
	IdleTimeout      time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
}

type StatusConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Host             string        `yaml:"host" env:"HOST"`
	Port             int           `yaml:"port" env:"PORT"`
	AuthToken        string        `yaml:"auth_token" env:"AUTH_TOKEN"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MaxConnections   int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
	MaskTokens       bool          `yaml:"mask_tokens" env:"MASK_TOKENS"`
}

type OrchestratorConfig struct {
	// Strict rejects player tokens that were not reserved beforehand.
	Strict           bool    `yaml:"strict" env:"STRICT"`
	MaxCPUPercent    float64 `yaml:"max_cpu_percent" env:"MAX_CPU_PERCENT"`
	MaxMemoryPercent float64 `yaml:"max_memory_percent" env:"MAX_MEMORY_PERCENT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// TracingConfig controls OTLP span export. Endpoint is an http(s) URL; when
// empty the exporter falls back to OTEL_EXPORTER_OTLP_* or localhost:4318.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        DefaultPort,
			IdleTimeout: 60 * time.Second,
		},
		Status: StatusConfig{
			Enabled:          true,
			Host:             "127.0.0.1",
			Port:             DefaultStatusPort,
			MaxConnections:   16,
			SnapshotInterval: 5 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxCPUPercent:    95,
			MaxMemoryPercent: 95,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "echo-relay",
		},
	}
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Load reads a YAML config file. Fields missing from the file keep their
// defaults; ECHO_RELAY_* environment variables override both.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must not be negative, got %s", c.Server.IdleTimeout)
	}
	if c.Server.HandshakeTimeout < 0 {
		return fmt.Errorf("server.handshake_timeout must not be negative, got %s", c.Server.HandshakeTimeout)
	}
	if c.Status.Enabled {
		if err := validPort("status.port", c.Status.Port); err != nil {
			return err
		}
		if c.Status.SnapshotInterval <= 0 {
			return fmt.Errorf("status.snapshot_interval must be positive, got %s", c.Status.SnapshotInterval)
		}
	}
	if c.Status.MaxConnections < 0 {
		return fmt.Errorf("status.max_connections must not be negative, got %d", c.Status.MaxConnections)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Tracing.Endpoint != "" {
		u, err := url.Parse(c.Tracing.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("tracing.endpoint must be an http(s) URL, got %q", c.Tracing.Endpoint)
		}
	}
	return nil
}

// validPort accepts 0 (pick a free port) through 65535.
func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

// Addr returns the relay listener address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Addr returns the status server address.
func (s StatusConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
