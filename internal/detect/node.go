package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
)

// NodeAdapter detects package.json projects
type NodeAdapter struct{}

type packageJSON struct {
	Main            string            `json:"main"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// frameworks are checked in order; the first dependency present wins.
// portArgs is passed to the script for servers that ignore $PORT.
var nodeFrameworks = []struct {
	dep       string
	framework string
	port      int
	portArgs  string
}{
	{"next", "next", 3000, ""},
	{"nuxt", "nuxt", 3000, ""},
	{"@sveltejs/kit", "sveltekit", 5173, "--port $PORT"},
	{"astro", "astro", 4321, "--port $PORT"},
	{"vite", "vite", 5173, "--port $PORT"},
	{"react-scripts", "create-react-app", 3000, ""},
	{"@angular/core", "angular", 4200, "--port $PORT"},
	{"express", "express", 3000, ""},
}

var lockFiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
}

// Name returns the stack identifier
func (a *NodeAdapter) Name() string { return "node" }

// CanHandle checks for package.json
func (a *NodeAdapter) CanHandle(dir string) bool {
	return fileExists(dir, "package.json")
}

// Detect reads package.json and picks a script and package manager
func (a *NodeAdapter) Detect(dir string) (*LaunchSpec, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}

	spec := &LaunchSpec{
		Stack:       a.Name(),
		Category:    config.CategoryNode,
		DefaultPort: 3000,
		Markers:     []string{"package.json"},
	}

	portArgs := ""
	for _, f := range nodeFrameworks {
		if hasDep(pkg, f.dep) {
			spec.Framework = f.framework
			spec.DefaultPort = f.port
			portArgs = f.portArgs
			break
		}
	}

	manager := "npm"
	for _, l := range lockFiles {
		if fileExists(dir, l.file) {
			manager = l.manager
			spec.Markers = append(spec.Markers, l.file)
			break
		}
	}

	for _, script := range []string{"dev", "start", "serve"} {
		if _, ok := pkg.Scripts[script]; ok {
			spec.Command = runScript(manager, script, portArgs)
			spec.Confidence = 90
			return spec, nil
		}
	}

	entry := pkg.Main
	if entry == "" && fileExists(dir, "index.js") {
		entry = "index.js"
	}
	if entry == "" || !fileExists(dir, entry) {
		return nil, nil
	}
	spec.Command = "node " + entry
	spec.Confidence = 40
	return spec, nil
}

func hasDep(pkg packageJSON, name string) bool {
	if _, ok := pkg.Dependencies[name]; ok {
		return true
	}
	_, ok := pkg.DevDependencies[name]
	return ok
}

// runScript builds the package manager invocation of script. npm needs "--"
// before arguments meant for the script; the others forward them as is.
func runScript(manager, script, args string) string {
	var cmd string
	switch manager {
	case "yarn":
		cmd = "yarn " + script
	case "pnpm":
		cmd = "pnpm run " + script
	case "bun":
		cmd = "bun run " + script
	default:
		cmd = "npm run " + script
		if args != "" {
			cmd += " --"
		}
	}
	if args != "" {
		cmd += " " + args
	}
	return cmd
}
