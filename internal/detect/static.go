package detect

import "github.com/AltairaLabs/devserver-mcp/internal/config"

// StaticAdapter serves a directory containing index.html
type StaticAdapter struct{}

// Name returns the stack identifier
func (a *StaticAdapter) Name() string { return "static" }

// CanHandle checks for index.html
func (a *StaticAdapter) CanHandle(dir string) bool {
	return fileExists(dir, "index.html")
}

// Detect returns a plain file server, the lowest-confidence fallback
func (a *StaticAdapter) Detect(dir string) (*LaunchSpec, error) {
	return &LaunchSpec{
		Stack:       a.Name(),
		Category:    config.CategoryStatic,
		Command:     "python3 -m http.server $PORT --bind 127.0.0.1",
		DefaultPort: 5500,
		Confidence:  20,
		Markers:     []string{"index.html"},
	}, nil
}
