package lifecycle

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// StopHandler implements the stop tool
type StopHandler struct {
	orchestrator types.SessionOrchestrator
}

// NewStopHandler creates a new stop handler
func NewStopHandler(orchestrator types.SessionOrchestrator) *StopHandler {
	return &StopHandler{orchestrator: orchestrator}
}

// Handle stops a session, optionally waiting for it to exit
func (h *StopHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := tools.ArgsFrom(request)

	sessionID, err := args.SessionID()
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	force, err := args.Bool(config.ParamForce)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	wait, err := args.IntInRange(config.ParamWaitSeconds, 0, 0, config.MaxStopWaitSeconds)
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	res, err := h.orchestrator.Stop(ctx, sessionID, types.StopOptions{
		Force: force,
		Wait:  time.Duration(wait) * time.Second,
	})
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	return tools.JSONResult(StopResponse{
		Success: res.Success,
		Message: res.Message,
		Status:  string(res.State),
	})
}
