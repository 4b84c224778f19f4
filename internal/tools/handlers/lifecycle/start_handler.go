package lifecycle

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// StartHandler implements the start tool
type StartHandler struct {
	orchestrator types.SessionOrchestrator
}

// NewStartHandler creates a new start handler
func NewStartHandler(orchestrator types.SessionOrchestrator) *StartHandler {
	return &StartHandler{orchestrator: orchestrator}
}

// Handle validates the arguments and launches or reuses a session
func (h *StartHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := parseStartRequest(tools.ArgsFrom(request))
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	res, err := h.orchestrator.Start(ctx, req)
	if err != nil {
		slog.Debug("start failed", "cwd", req.Cwd, "error", err)
		return tools.ErrorResult(err), nil
	}

	s := res.Session
	return tools.JSONResult(StartResponse{
		SessionID:       s.ID,
		PID:             s.PID,
		ContainerID:     s.ContainerID,
		Port:            s.Port,
		Status:          string(s.State),
		Message:         res.Message,
		AlreadyRunning:  res.AlreadyRunning,
		PortSubstituted: res.PortSubstituted,
		RequestedPort:   res.RequestedPort,
		Framework:       s.Framework,
		Category:        s.Category,
	})
}

func parseStartRequest(args tools.Args) (*types.StartRequest, error) {
	var (
		req types.StartRequest
		err error
	)
	if req.Cwd, err = args.RequireString(config.ParamCwd); err != nil {
		return nil, err
	}
	if req.Command, err = args.String(config.ParamCommand); err != nil {
		return nil, err
	}
	if req.Port, err = args.IntInRange(config.ParamPort, 0, 0, 65535); err != nil {
		return nil, err
	}
	if req.Env, err = args.StringMap(config.ParamEnv); err != nil {
		return nil, err
	}
	if req.Name, err = args.String(config.ParamName); err != nil {
		return nil, err
	}
	if req.Category, err = args.String(config.ParamCategory); err != nil {
		return nil, err
	}
	if req.Runtime, err = args.String(config.ParamRuntime); err != nil {
		return nil, err
	}
	switch req.Runtime {
	case "", config.RuntimeProcess, config.RuntimeDocker:
	default:
		return nil, types.NewError(types.KindInvalidParams, "argument %q must be %q or %q", config.ParamRuntime, config.RuntimeProcess, config.RuntimeDocker)
	}
	if req.Watch, err = args.Bool(config.ParamWatch); err != nil {
		return nil, err
	}
	return &req, nil
}
