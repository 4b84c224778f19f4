package detect

import (
	"os"
	"path/filepath"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
)

// GoAdapter detects Go modules
type GoAdapter struct{}

// Name returns the stack identifier
func (a *GoAdapter) Name() string { return "golang" }

// CanHandle checks for go.mod
func (a *GoAdapter) CanHandle(dir string) bool {
	return fileExists(dir, "go.mod")
}

// Detect runs the root package, or the only command under cmd/
func (a *GoAdapter) Detect(dir string) (*LaunchSpec, error) {
	spec := &LaunchSpec{
		Stack:       a.Name(),
		Category:    config.CategoryGo,
		Command:     "go run .",
		DefaultPort: 8080,
		Confidence:  70,
		Markers:     []string{"go.mod"},
	}

	if hasGoFiles(dir) {
		return spec, nil
	}

	entries, err := os.ReadDir(filepath.Join(dir, "cmd"))
	if err != nil {
		return nil, nil
	}
	var cmds []string
	for _, e := range entries {
		if e.IsDir() && hasGoFiles(filepath.Join(dir, "cmd", e.Name())) {
			cmds = append(cmds, e.Name())
		}
	}
	if len(cmds) != 1 {
		return nil, nil
	}
	spec.Command = "go run ./cmd/" + cmds[0]
	return spec, nil
}

func hasGoFiles(dir string) bool {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.go"))
	return len(matches) > 0
}
