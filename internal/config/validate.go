package config

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// MinUserPort is the lowest port a band may start at
	MinUserPort = 1024
	// MaxPort is the highest valid TCP port
	MaxPort = 65535
)

// ValidationError collects multiple validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s",
		strings.Join(e.Errors, "\n  - "))
}

// Add appends a validation error message
func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// HasErrors returns true if there are any validation errors
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the config for semantic errors
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateBands(c.Ports, errs)

	for _, p := range []struct {
		name string
		port int
	}{{"grpc_port", c.Server.GRPCPort}, {"api_port", c.Server.APIPort}} {
		if p.port < 0 || p.port > MaxPort {
			errs.Add(fmt.Sprintf("server.%s %d is out of range", p.name, p.port))
			continue
		}
		if cat := c.CategoryForPort(p.port); cat != "" && cat != CategorySystem {
			errs.Add(fmt.Sprintf("server.%s %d lies inside the %s band", p.name, p.port, cat))
		}
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.APIPort {
		errs.Add("server.grpc_port and server.api_port must differ")
	}

	if c.Session.StopGrace <= 0 {
		errs.Add("session.stop_grace must be positive")
	}
	if c.Session.ReadyGrace <= 0 {
		errs.Add("session.ready_grace must be positive")
	}
	if c.Session.OutputQueue <= 0 {
		errs.Add("session.output_queue must be positive")
	}
	switch c.Session.DefaultRuntime {
	case RuntimeProcess, RuntimeDocker:
	default:
		errs.Add(fmt.Sprintf("session.default_runtime %q must be %q or %q",
			c.Session.DefaultRuntime, RuntimeProcess, RuntimeDocker))
	}

	if c.Log.BufferCapacity <= 0 {
		errs.Add("log.buffer_capacity must be positive")
	}
	if c.Log.DefaultTail <= 0 || c.Log.DefaultTail > c.Log.BufferCapacity {
		errs.Add(fmt.Sprintf("log.default_tail must be between 1 and %d", c.Log.BufferCapacity))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// CategoryForPort returns the category of the band containing port, or ""
func (c *Config) CategoryForPort(port int) string {
	for _, b := range c.Ports {
		if port >= b.Start && port <= b.End {
			return b.Category
		}
	}
	return ""
}

func validateBands(bands []BandConfig, errs *ValidationError) {
	if len(bands) == 0 {
		errs.Add("at least one port band is required")
		return
	}

	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if b.Category == "" {
			errs.Add("port band category is required")
		} else if seen[b.Category] {
			errs.Add(fmt.Sprintf("port band %q is declared twice", b.Category))
		}
		seen[b.Category] = true

		if b.Start < MinUserPort || b.End > MaxPort {
			errs.Add(fmt.Sprintf("port band %q must lie within %d-%d", b.Category, MinUserPort, MaxPort))
		}
		if b.Start > b.End {
			errs.Add(fmt.Sprintf("port band %q starts after it ends", b.Category))
		}
	}

	sorted := make([]BandConfig, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start <= sorted[i-1].End {
			errs.Add(fmt.Sprintf("port bands %q and %q overlap", sorted[i-1].Category, sorted[i].Category))
		}
	}
}
