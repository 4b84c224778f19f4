// Package tools holds the tool handler registry and the argument and result
// helpers shared by the tool handlers.
package tools

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// ToolHandlerFunc is a function that handles a tool call
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolHandlerRegistry maps tool names to handler functions
type ToolHandlerRegistry struct {
	handlers map[string]ToolHandlerFunc
}

// NewToolHandlerRegistry creates a registry seeded with initial
func NewToolHandlerRegistry(initial map[string]ToolHandlerFunc) *ToolHandlerRegistry {
	r := &ToolHandlerRegistry{
		handlers: make(map[string]ToolHandlerFunc),
	}
	for k, v := range initial {
		r.handlers[k] = v
	}
	return r
}

// Register adds or replaces a handler for a tool name
func (r *ToolHandlerRegistry) Register(toolName string, handler ToolHandlerFunc) {
	r.handlers[toolName] = handler
}

// GetHandler returns the handler for a tool name, or an UnknownTool error
func (r *ToolHandlerRegistry) GetHandler(toolName string) (ToolHandlerFunc, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		return nil, types.NewError(types.KindUnknownTool, "unknown tool %q", toolName)
	}
	return h, nil
}

// GetAllHandlers returns a copy of the handler map
func (r *ToolHandlerRegistry) GetAllHandlers() map[string]ToolHandlerFunc {
	out := make(map[string]ToolHandlerFunc, len(r.handlers))
	for k, v := range r.handlers {
		out[k] = v
	}
	return out
}

// Names returns the registered tool names in sorted order
func (r *ToolHandlerRegistry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
