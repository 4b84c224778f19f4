// Package inspect provides the read-only status and list tool handlers
package inspect

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// StatusHandler implements the status tool
type StatusHandler struct {
	orchestrator types.SessionOrchestrator
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(orchestrator types.SessionOrchestrator) *StatusHandler {
	return &StatusHandler{orchestrator: orchestrator}
}

// Handle returns a snapshot of one session
func (h *StatusHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := tools.ArgsFrom(request).SessionID()
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	info, err := h.orchestrator.Status(sessionID)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(info)
}
