package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.StopGrace != DefaultStopGrace {
		t.Errorf("Expected StopGrace %v, got %v", DefaultStopGrace, cfg.Session.StopGrace)
	}
	if cfg.Log.BufferCapacity != DefaultLogCapacity {
		t.Errorf("Expected BufferCapacity %d, got %d", DefaultLogCapacity, cfg.Log.BufferCapacity)
	}
	if cfg.Session.DefaultRuntime != RuntimeProcess {
		t.Errorf("Expected runtime %q, got %q", RuntimeProcess, cfg.Session.DefaultRuntime)
	}
	if len(cfg.Ports) != len(DefaultBands()) {
		t.Errorf("Expected %d bands, got %d", len(DefaultBands()), len(cfg.Ports))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got %v", err)
	}
}

func TestTimingConstants(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected time.Duration
	}{
		{"DefaultStopGrace", DefaultStopGrace, 5 * time.Second},
		{"DefaultReadyGrace", DefaultReadyGrace, 10 * time.Second},
		{"DefaultRetention", DefaultRetention, time.Hour},
		{"DefaultWatchDebounce", DefaultWatchDebounce, 500 * time.Millisecond},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.duration != test.expected {
				t.Errorf("Expected %v, got %v", test.expected, test.duration)
			}
		})
	}
}

func TestAllTools(t *testing.T) {
	expected := []string{"start", "stop", "restart", "status", "logs", "list"}
	got := AllTools()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d tools, got %d", len(expected), len(got))
	}
	for i, name := range expected {
		if got[i] != name {
			t.Errorf("Expected tool %d to be %q, got %q", i, name, got[i])
		}
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("Expected GRPCPort %d, got %d", DefaultGRPCPort, cfg.Server.GRPCPort)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
server:
  grpc_port: 9070
session:
  stop_grace: 2s
  ready_phrases: ["booted"]
log:
  buffer_capacity: 50
  default_tail: 20
ports:
  - category: node
    start: 3100
    end: 3199
  - category: system
    start: 9000
    end: 9099
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Server.GRPCPort != 9070 {
		t.Errorf("Expected GRPCPort 9070, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.APIPort != DefaultAPIPort {
		t.Errorf("Expected default APIPort, got %d", cfg.Server.APIPort)
	}
	if cfg.Session.StopGrace != 2*time.Second {
		t.Errorf("Expected StopGrace 2s, got %v", cfg.Session.StopGrace)
	}
	if len(cfg.Session.ReadyPhrases) != 1 || cfg.Session.ReadyPhrases[0] != "booted" {
		t.Errorf("Expected ready phrases [booted], got %v", cfg.Session.ReadyPhrases)
	}
	if len(cfg.Ports) != 2 {
		t.Errorf("Expected 2 bands, got %d", len(cfg.Ports))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GRPC_PORT":         "9060",
		"API_PORT":          "9061",
		"HTTP_PORT":         "8080",
		"DEVSERVER_RUNTIME": "docker",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Server.GRPCPort != 9060 {
		t.Errorf("Expected GRPCPort 9060, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.APIPort != 9061 {
		t.Errorf("Expected APIPort 9061, got %d", cfg.Server.APIPort)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Session.DefaultRuntime != RuntimeDocker {
		t.Errorf("Expected docker runtime, got %s", cfg.Session.DefaultRuntime)
	}

	bad := DefaultConfig()
	if err := bad.ApplyEnv(func(k string) string {
		if k == "GRPC_PORT" {
			return "abc"
		}
		return ""
	}); err == nil {
		t.Error("Expected error for non-numeric GRPC_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "overlapping bands",
			mutate: func(c *Config) {
				c.Ports = append(c.Ports, BandConfig{Category: "extra", Start: 3050, End: 3150})
			},
			wantErr: "overlap",
		},
		{
			name:    "inverted band",
			mutate:  func(c *Config) { c.Ports[1].Start, c.Ports[1].End = 3099, 3001 },
			wantErr: "starts after it ends",
		},
		{
			name:    "duplicate category",
			mutate:  func(c *Config) { c.Ports = append(c.Ports, BandConfig{Category: "node", Start: 20000, End: 20010}) },
			wantErr: "declared twice",
		},
		{
			name:    "privileged band",
			mutate:  func(c *Config) { c.Ports = append(c.Ports, BandConfig{Category: "low", Start: 80, End: 90}) },
			wantErr: "must lie within",
		},
		{
			name:    "grpc port in a session band",
			mutate:  func(c *Config) { c.Server.GRPCPort = 3005 },
			wantErr: "inside the node band",
		},
		{
			name:    "bad runtime",
			mutate:  func(c *Config) { c.Session.DefaultRuntime = "vm" },
			wantErr: "default_runtime",
		},
		{
			name:    "tail larger than buffer",
			mutate:  func(c *Config) { c.Log.DefaultTail = c.Log.BufferCapacity + 1 },
			wantErr: "default_tail",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Expected error containing %q, got %v", test.wantErr, err)
			}
		})
	}
}

func TestCategoryForPort(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.CategoryForPort(8005); got != CategoryPython {
		t.Errorf("Expected python, got %q", got)
	}
	if got := cfg.CategoryForPort(12345); got != "" {
		t.Errorf("Expected no category, got %q", got)
	}
}
