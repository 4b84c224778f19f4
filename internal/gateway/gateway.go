// Package gateway exposes the session tools over MCP, gRPC and a JSON HTTP API.
// Every transport dispatches through Gateway.Invoke so validation, auditing and
// error translation are identical everywhere.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/logstore"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/tools/handlers/inspect"
	"github.com/AltairaLabs/devserver-mcp/internal/tools/handlers/lifecycle"
	"github.com/AltairaLabs/devserver-mcp/internal/tools/handlers/logs"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

type correlationKey struct{}

// CorrelationID returns the id assigned to the tool call carried by ctx
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Config holds server identity and log limits
type Config struct {
	Name         string
	Version      string
	LogCapacity  int
	DefaultLimit int
}

// Gateway dispatches tool calls to their handlers
type Gateway struct {
	server       *server.MCPServer
	registry     *tools.ToolHandlerRegistry
	orchestrator types.SessionOrchestrator
	logs         *logstore.Store
	audit        types.AuditLogger
	logger       *slog.Logger
}

// New creates a gateway with all tools registered on an MCP server
func New(cfg Config, orchestrator types.SessionOrchestrator, logStore *logstore.Store, audit types.AuditLogger, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = NewAuditLogger(logger)
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = logStore.Capacity()
	}

	g := &Gateway{
		server: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		orchestrator: orchestrator,
		logs:         logStore,
		audit:        audit,
		logger:       logger,
	}

	g.registry = tools.NewToolHandlerRegistry(map[string]tools.ToolHandlerFunc{
		config.ToolStart:   lifecycle.NewStartHandler(orchestrator).Handle,
		config.ToolStop:    lifecycle.NewStopHandler(orchestrator).Handle,
		config.ToolRestart: lifecycle.NewRestartHandler(orchestrator).Handle,
		config.ToolStatus:  inspect.NewStatusHandler(orchestrator).Handle,
		config.ToolList:    inspect.NewListHandler(orchestrator).Handle,
		config.ToolLogs:    logs.NewHandler(logStore, cfg.LogCapacity, cfg.DefaultLimit).Handle,
	})

	g.registerTools(cfg.LogCapacity)
	return g
}

// MCPServer returns the underlying MCP server
func (g *Gateway) MCPServer() *server.MCPServer {
	return g.server
}

// Orchestrator returns the orchestrator behind the tools
func (g *Gateway) Orchestrator() types.SessionOrchestrator {
	return g.orchestrator
}

// Logs returns the log store used for streaming
func (g *Gateway) Logs() *logstore.Store {
	return g.logs
}

// Tools returns the registered tool names
func (g *Gateway) Tools() []string {
	return g.registry.Names()
}

// Invoke runs a tool by name. Domain failures come back as error results;
// only an unknown tool name is returned as an error.
func (g *Gateway) Invoke(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	handler, err := g.registry.GetHandler(tool)
	if err != nil {
		g.audit.LogToolResult(ctx, &types.AuditEntry{
			CorrelationID: uuid.NewString(),
			ToolName:      tool,
			ErrorKind:     types.KindOf(err),
			ErrorMsg:      err.Error(),
		})
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return g.dispatch(ctx, tool, handler, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
}

// dispatch wraps a handler call with a correlation id and audit records
func (g *Gateway) dispatch(ctx context.Context, tool string, handler tools.ToolHandlerFunc, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.NewString()
	ctx = context.WithValue(ctx, correlationKey{}, correlationID)

	args := request.GetArguments()
	sessionID, _ := tools.Args(args).SessionID()

	g.audit.LogToolCall(ctx, &types.AuditEntry{
		CorrelationID: correlationID,
		SessionID:     sessionID,
		ToolName:      tool,
		Arguments:     args,
	})

	start := time.Now()
	result, err := handler(ctx, request)
	entry := &types.AuditEntry{
		CorrelationID: correlationID,
		SessionID:     sessionID,
		ToolName:      tool,
		Duration:      time.Since(start),
	}
	switch {
	case err != nil:
		entry.ErrorKind = types.KindOf(err)
		entry.ErrorMsg = err.Error()
	case result != nil && result.IsError:
		_, derr := tools.DecodeResult(result)
		entry.ErrorKind = types.KindOf(derr)
		entry.ErrorMsg = types.PublicMessage(derr)
	}
	g.audit.LogToolResult(ctx, entry)

	return result, err
}

// registerTools publishes the tool schemas on the MCP server
func (g *Gateway) registerTools(logCapacity int) {
	for _, tool := range toolDefinitions(logCapacity) {
		name := tool.Name
		handler, err := g.registry.GetHandler(name)
		if err != nil {
			panic("tool " + name + " not found in registry")
		}
		g.server.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return g.dispatch(ctx, name, handler, req)
		})
	}
}

func toolDefinitions(logCapacity int) []mcp.Tool {
	sessionID := mcp.WithString(config.ParamSessionID,
		mcp.Required(),
		mcp.Description("Session ID returned by start"),
	)

	return []mcp.Tool{
		mcp.NewTool(config.ToolStart,
			mcp.WithDescription("Start a development server for a project directory. Detects the project type when no command is given and returns the running session when one already matches."),
			mcp.WithString(config.ParamCwd,
				mcp.Required(),
				mcp.Description("Absolute path of the project directory"),
			),
			mcp.WithString(config.ParamCommand,
				mcp.Description("Shell command to run instead of the detected one"),
			),
			mcp.WithNumber(config.ParamPort,
				mcp.Description("Preferred port; a free one from the same band is used when taken"),
				mcp.Min(0),
				mcp.Max(65535),
			),
			mcp.WithObject(config.ParamEnv,
				mcp.Description("Extra environment variables as string values"),
			),
			mcp.WithString(config.ParamName,
				mcp.Description("Display name for the session"),
			),
			mcp.WithString(config.ParamCategory,
				mcp.Description("Port band to allocate from (node, python, golang, static, custom)"),
			),
			mcp.WithString(config.ParamRuntime,
				mcp.Description("Where to run the command"),
				mcp.Enum(config.RuntimeProcess, config.RuntimeDocker),
			),
			mcp.WithBoolean(config.ParamWatch,
				mcp.Description("Restart the session when source files change"),
			),
		),
		mcp.NewTool(config.ToolStop,
			mcp.WithDescription("Stop a session. Sends SIGTERM and kills the process if it is still alive after the grace period."),
			sessionID,
			mcp.WithBoolean(config.ParamForce,
				mcp.Description("Kill immediately without a grace period"),
			),
			mcp.WithNumber(config.ParamWaitSeconds,
				mcp.Description("Seconds to wait for the session to exit before returning"),
				mcp.Min(0),
				mcp.Max(config.MaxStopWaitSeconds),
			),
		),
		mcp.NewTool(config.ToolRestart,
			mcp.WithDescription("Stop and relaunch a session with the same command, keeping its ID and logs"),
			sessionID,
		),
		mcp.NewTool(config.ToolStatus,
			mcp.WithDescription("Get the current state of a session"),
			sessionID,
		),
		mcp.NewTool(config.ToolLogs,
			mcp.WithDescription("Get recent output of a session, oldest first"),
			sessionID,
			mcp.WithNumber(config.ParamLimit,
				mcp.Description("Maximum number of lines to return"),
				mcp.Min(1),
				mcp.Max(float64(logCapacity)),
			),
			mcp.WithString(config.ParamFilter,
				mcp.Description("Case-insensitive substring to match"),
			),
			mcp.WithString(config.ParamStream,
				mcp.Description("Only return lines from this stream"),
				mcp.Enum(string(types.StreamStdout), string(types.StreamStderr), string(types.StreamSystem)),
			),
		),
		mcp.NewTool(config.ToolList,
			mcp.WithDescription("List all sessions, most recently started first"),
		),
	}
}

// ServeStdio serves MCP over stdin/stdout until the input closes
func (g *Gateway) ServeStdio() error {
	g.logger.Info("Starting MCP server with stdio transport")
	return server.ServeStdio(g.server)
}

// NewSSEServer returns an MCP HTTP/SSE server for addr
func (g *Gateway) NewSSEServer(addr, baseURL string) *server.SSEServer {
	if baseURL == "" {
		baseURL = "http://" + addr
	}
	g.logger.Info("Starting MCP server with HTTP/SSE transport", "address", addr, "base_path", "/mcp")
	return server.NewSSEServer(g.server,
		server.WithBaseURL(baseURL),
		server.WithStaticBasePath("/mcp"),
	)
}
