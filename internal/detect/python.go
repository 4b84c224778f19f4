package detect

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
)

// PythonAdapter detects Django, FastAPI, Flask and plain script projects
type PythonAdapter struct{}

var pythonManifests = []string{"requirements.txt", "pyproject.toml", "Pipfile", "setup.py"}

var pythonEntrypoints = []string{"main.py", "app.py", "server.py"}

// Name returns the stack identifier
func (a *PythonAdapter) Name() string { return "python" }

// CanHandle checks for a manifest, manage.py, or a known entrypoint
func (a *PythonAdapter) CanHandle(dir string) bool {
	if fileExists(dir, "manage.py") {
		return true
	}
	for _, f := range pythonManifests {
		if fileExists(dir, f) {
			return true
		}
	}
	for _, f := range pythonEntrypoints {
		if fileExists(dir, f) {
			return true
		}
	}
	return false
}

// Detect picks a framework from manifests and entrypoints
func (a *PythonAdapter) Detect(dir string) (*LaunchSpec, error) {
	spec := &LaunchSpec{
		Stack:    a.Name(),
		Category: config.CategoryPython,
	}

	if fileExists(dir, "manage.py") {
		spec.Framework = "django"
		spec.Command = "python3 manage.py runserver 0.0.0.0:$PORT"
		spec.DefaultPort = 8000
		spec.Confidence = 85
		spec.Markers = []string{"manage.py"}
		return spec, nil
	}

	deps, markers := readPythonDeps(dir)
	spec.Markers = markers

	entry := ""
	for _, f := range pythonEntrypoints {
		if fileExists(dir, f) {
			entry = f
			spec.Markers = append(spec.Markers, f)
			break
		}
	}
	module := strings.TrimSuffix(entry, ".py")

	switch {
	case strings.Contains(deps, "fastapi") && entry != "":
		spec.Framework = "fastapi"
		spec.Command = "uvicorn " + module + ":app --reload --host 0.0.0.0 --port $PORT"
		spec.DefaultPort = 8000
		spec.Confidence = 80
	case strings.Contains(deps, "flask"):
		spec.Framework = "flask"
		spec.Command = "flask run --host 0.0.0.0 --port $PORT"
		if entry != "" {
			spec.Command = "FLASK_APP=" + entry + " " + spec.Command
		}
		spec.DefaultPort = 5000
		spec.Confidence = 80
	case entry != "":
		spec.Command = "python3 " + entry
		spec.DefaultPort = 8000
		spec.Confidence = 50
	default:
		return nil, nil
	}

	return spec, nil
}

// readPythonDeps returns the lowercased contents of the dependency manifests found
func readPythonDeps(dir string) (string, []string) {
	var b strings.Builder
	var markers []string
	for _, f := range pythonManifests {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			continue
		}
		markers = append(markers, f)
		b.WriteString(strings.ToLower(string(data)))
		b.WriteByte('\n')
	}
	return b.String(), markers
}
