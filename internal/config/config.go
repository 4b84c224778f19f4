// Package config holds orchestrator defaults and the optional devserver.yaml file
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default name of the config file
	ConfigFileName = "devserver.yaml"
	// ServerName is the MCP server name advertised to clients
	ServerName = "devserver-mcp"
	// DefaultGRPCPort is the gRPC gateway port, inside the system band
	DefaultGRPCPort = 9050
	// DefaultAPIPort is the HTTP API port, inside the system band
	DefaultAPIPort = 9051
	// DefaultLogCapacity is the per-session ring buffer size
	DefaultLogCapacity = 1000
	// DefaultTailLimit is the number of entries returned by logs when no limit is given
	DefaultTailLimit = 100
	// DefaultOutputQueue is the per-session capture channel size
	DefaultOutputQueue = 256
)

// Config represents the devserver.yaml configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ports   []BandConfig  `yaml:"ports"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Docker  DockerConfig  `yaml:"docker"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig controls the transports
type ServerConfig struct {
	// HTTPAddr serves MCP over SSE instead of stdio when set
	HTTPAddr string `yaml:"http_addr,omitempty"`
	// BaseURL is advertised by the SSE transport
	BaseURL  string `yaml:"base_url,omitempty"`
	GRPCPort int    `yaml:"grpc_port"`
	APIPort  int    `yaml:"api_port"`
}

// BandConfig is a named inclusive port range
type BandConfig struct {
	Category string `yaml:"category"`
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
}

// SessionConfig controls session lifecycle timing
type SessionConfig struct {
	StopGrace       time.Duration `yaml:"stop_grace"`
	ReadyGrace      time.Duration `yaml:"ready_grace"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	ReadyPhrases    []string      `yaml:"ready_phrases,omitempty"`
	DefaultRuntime  string        `yaml:"default_runtime"`
	OutputQueue     int           `yaml:"output_queue"`
}

// LogConfig controls log buffering
type LogConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
	DefaultTail    int `yaml:"default_tail"`
}

// DockerConfig controls the containerized runtime
type DockerConfig struct {
	// Images maps a port band category to the image used to run it
	Images    map[string]string `yaml:"images,omitempty"`
	Preflight bool              `yaml:"preflight"`
}

// WatchConfig controls restart-on-change
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// Extensions maps a category to the file extensions that trigger a restart
	Extensions map[string][]string `yaml:"extensions,omitempty"`
	Ignore     []string            `yaml:"ignore,omitempty"`
}

// DefaultReadyPhrases are matched case-insensitively against session output
func DefaultReadyPhrases() []string {
	return []string{
		"listening on",
		"compiled successfully",
		"ready on",
		"ready in",
		"running on",
		"server started",
		"started server on",
		"development server at",
		"local:",
	}
}

// DefaultBands returns the built-in port bands
func DefaultBands() []BandConfig {
	return []BandConfig{
		{Category: CategorySystem, Start: 9000, End: 9099},
		{Category: CategoryNode, Start: 3001, End: 3099},
		{Category: CategoryPython, Start: 8000, End: 8099},
		{Category: CategoryGo, Start: 8100, End: 8199},
		{Category: CategoryStatic, Start: 5500, End: 5599},
		{Category: CategoryCustom, Start: 4000, End: 4099},
	}
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// ApplyEnv overrides config values from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GRPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GRPC_PORT %q: %w", v, err)
		}
		c.Server.GRPCPort = port
	}
	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		c.Server.APIPort = port
	}
	if v := getenv("HTTP_PORT"); v != "" {
		c.Server.HTTPAddr = ":" + v
	}
	if v := getenv("DEVSERVER_RUNTIME"); v != "" {
		c.Session.DefaultRuntime = v
	}
	return nil
}

// applyDefaults fills in missing values with defaults
func applyDefaults(cfg *Config) {
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = DefaultGRPCPort
	}
	if cfg.Server.APIPort == 0 {
		cfg.Server.APIPort = DefaultAPIPort
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = DefaultBands()
	}
	if cfg.Session.StopGrace == 0 {
		cfg.Session.StopGrace = DefaultStopGrace
	}
	if cfg.Session.ReadyGrace == 0 {
		cfg.Session.ReadyGrace = DefaultReadyGrace
	}
	if cfg.Session.Retention == 0 {
		cfg.Session.Retention = DefaultRetention
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = DefaultCleanupInterval
	}
	if len(cfg.Session.ReadyPhrases) == 0 {
		cfg.Session.ReadyPhrases = DefaultReadyPhrases()
	}
	if cfg.Session.DefaultRuntime == "" {
		cfg.Session.DefaultRuntime = RuntimeProcess
	}
	if cfg.Session.OutputQueue == 0 {
		cfg.Session.OutputQueue = DefaultOutputQueue
	}
	if cfg.Log.BufferCapacity == 0 {
		cfg.Log.BufferCapacity = DefaultLogCapacity
	}
	if cfg.Log.DefaultTail == 0 {
		cfg.Log.DefaultTail = DefaultTailLimit
	}
	if cfg.Docker.Images == nil {
		cfg.Docker.Images = map[string]string{
			CategoryNode:   "node:22-alpine",
			CategoryPython: "python:3.12-slim",
			CategoryGo:     "golang:1.25",
			CategoryStatic: "python:3.12-slim",
			CategoryCustom: "ubuntu:24.04",
		}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = map[string][]string{
			CategoryPython: {".py", ".pyx", ".pyi"},
			CategoryGo:     {".go"},
			CategoryStatic: {".html", ".css", ".js"},
		}
	}
	if len(cfg.Watch.Ignore) == 0 {
		cfg.Watch.Ignore = []string{"node_modules", "__pycache__", "venv", "env", "dist", "build"}
	}
}
