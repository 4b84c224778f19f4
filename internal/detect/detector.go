// Package detect infers how to launch a project's development server from the
// files in its directory. Detection only reads files; it never runs project code.
package detect

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// LaunchSpec describes how to run a detected project
type LaunchSpec struct {
	// Stack is the name of the adapter that produced the spec
	Stack string `json:"stack"`
	// Category selects the port band
	Category string `json:"category"`
	// Framework is a best-effort label such as "next" or "django"
	Framework string `json:"framework,omitempty"`
	// Command is a shell command line. It reads the assigned port from $PORT.
	Command string `json:"command"`
	// DefaultPort is the conventional port for the framework, used as the preferred port
	DefaultPort int `json:"default_port,omitempty"`
	// Confidence ranks competing adapters, higher wins
	Confidence int `json:"confidence"`
	// Markers lists the files that led to the decision
	Markers []string `json:"markers,omitempty"`
}

// Adapter recognizes one technology stack
type Adapter interface {
	// Name returns the stack identifier (e.g., "node", "python")
	Name() string

	// CanHandle is a cheap marker-file check
	CanHandle(dir string) bool

	// Detect inspects the directory and returns a launch spec.
	// A nil spec with nil error means the adapter declines the project.
	Detect(dir string) (*LaunchSpec, error)
}

// Detector runs adapters in priority order
type Detector struct {
	adapters []Adapter
}

// NewDetector creates a detector. Earlier adapters win confidence ties.
func NewDetector(adapters ...Adapter) *Detector {
	return &Detector{adapters: adapters}
}

// DefaultDetector returns a detector with the built-in adapters
func DefaultDetector() *Detector {
	return NewDetector(
		&NodeAdapter{},
		&PythonAdapter{},
		&GoAdapter{},
		&StaticAdapter{},
	)
}

// Adapters returns the adapter names in priority order
func (d *Detector) Adapters() []string {
	names := make([]string, 0, len(d.adapters))
	for _, a := range d.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Detect returns the highest-confidence launch spec for dir
func (d *Detector) Detect(dir string) (*LaunchSpec, error) {
	if err := ValidateProjectPath(dir); err != nil {
		return nil, err
	}

	var best *LaunchSpec
	var firstErr error
	for _, a := range d.adapters {
		if !a.CanHandle(dir) {
			continue
		}
		spec, err := a.Detect(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", a.Name(), err)
			}
			continue
		}
		if spec == nil {
			continue
		}
		if spec.Stack == "" {
			spec.Stack = a.Name()
		}
		if best == nil || spec.Confidence > best.Confidence {
			best = spec
		}
	}

	if best == nil {
		if firstErr != nil {
			return nil, types.WrapError(types.KindUnknownProjectType, firstErr,
				"no supported project type found in %s", dir)
		}
		return nil, types.NewError(types.KindUnknownProjectType,
			"no supported project type found in %s (tried %v)", dir, d.Adapters())
	}
	return best, nil
}

// ValidateProjectPath checks that dir is an absolute path to a readable directory
func ValidateProjectPath(dir string) error {
	if dir == "" {
		return types.NewError(types.KindInvalidProjectPath, "project path is required")
	}
	if !filepath.IsAbs(dir) {
		return types.NewError(types.KindInvalidProjectPath, "project path %s must be absolute", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewError(types.KindInvalidProjectPath, "project path %s does not exist", dir)
		}
		return types.WrapError(types.KindInvalidProjectPath, err, "project path %s is not accessible", dir)
	}
	if !info.IsDir() {
		return types.NewError(types.KindInvalidProjectPath, "project path %s is not a directory", dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return types.WrapError(types.KindInvalidProjectPath, err, "project path %s is not readable", dir)
	}
	return nil
}

func fileExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}
