package inspect

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// ListHandler implements the list tool
type ListHandler struct {
	orchestrator types.SessionOrchestrator
}

// NewListHandler creates a new list handler
func NewListHandler(orchestrator types.SessionOrchestrator) *ListHandler {
	return &ListHandler{orchestrator: orchestrator}
}

// Handle returns every known session, most recently started first
func (h *ListHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := h.orchestrator.List()
	if sessions == nil {
		sessions = []*types.SessionInfo{}
	}
	return tools.JSONResult(sessions)
}
