package lifecycle

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// RestartHandler implements the restart tool
type RestartHandler struct {
	orchestrator types.SessionOrchestrator
}

// NewRestartHandler creates a new restart handler
func NewRestartHandler(orchestrator types.SessionOrchestrator) *RestartHandler {
	return &RestartHandler{orchestrator: orchestrator}
}

// Handle restarts a session in place
func (h *RestartHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := tools.ArgsFrom(request).SessionID()
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	info, err := h.orchestrator.Restart(ctx, sessionID)
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	return tools.JSONResult(RestartResponse{
		SessionID: info.ID,
		Status:    string(info.State),
		Port:      info.Port,
		Restarts:  info.Restarts,
	})
}
