// Package logs provides the logs tool handler
package logs

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Handler implements the logs tool
type Handler struct {
	reader       types.LogReader
	capacity     int
	defaultLimit int
}

// NewHandler creates a logs handler. Limits are bounded by capacity.
func NewHandler(reader types.LogReader, capacity, defaultLimit int) *Handler {
	if capacity <= 0 {
		capacity = config.DefaultLogCapacity
	}
	if defaultLimit <= 0 || defaultLimit > capacity {
		defaultLimit = min(config.DefaultTailLimit, capacity)
	}
	return &Handler{
		reader:       reader,
		capacity:     capacity,
		defaultLimit: defaultLimit,
	}
}

// Handle returns the most recent matching log entries, oldest first
func (h *Handler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, sessionID, err := h.parse(tools.ArgsFrom(request))
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	entries, err := h.reader.Tail(sessionID, query)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	if entries == nil {
		entries = []types.LogEntry{}
	}
	return tools.JSONResult(entries)
}

func (h *Handler) parse(args tools.Args) (types.TailQuery, string, error) {
	var q types.TailQuery

	sessionID, err := args.SessionID()
	if err != nil {
		return q, "", err
	}
	if q.Limit, err = args.IntInRange(config.ParamLimit, h.defaultLimit, 1, h.capacity); err != nil {
		return q, "", err
	}
	if q.Filter, err = args.String(config.ParamFilter); err != nil {
		return q, "", err
	}
	stream, err := args.String(config.ParamStream)
	if err != nil {
		return q, "", err
	}
	origin, ok := types.ParseStreamOrigin(stream)
	if !ok {
		return q, "", types.NewError(types.KindInvalidParams, "argument %q must be stdout, stderr or system", config.ParamStream)
	}
	q.Stream = origin
	return q, sessionID, nil
}
