package gateway

import (
	"context"
	"log/slog"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// AuditLogger handles audit logging for tool calls
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogToolCall logs a tool invocation
func (al *AuditLogger) LogToolCall(ctx context.Context, entry *types.AuditEntry) {
	al.logger.InfoContext(ctx, "tool_call",
		"correlation_id", entry.CorrelationID,
		"session_id", entry.SessionID,
		"tool_name", entry.ToolName,
		"arguments", entry.Arguments,
	)
}

// LogToolResult logs a tool outcome. Failures are logged as tool_error.
func (al *AuditLogger) LogToolResult(ctx context.Context, entry *types.AuditEntry) {
	if entry.ErrorKind == "" {
		al.logger.InfoContext(ctx, "tool_result",
			"correlation_id", entry.CorrelationID,
			"session_id", entry.SessionID,
			"tool_name", entry.ToolName,
			"duration_ms", entry.Duration.Milliseconds(),
		)
		return
	}

	logFn := al.logger.WarnContext
	if entry.ErrorKind == types.KindInternalError {
		logFn = al.logger.ErrorContext
	}
	logFn(ctx, "tool_error",
		"correlation_id", entry.CorrelationID,
		"session_id", entry.SessionID,
		"tool_name", entry.ToolName,
		"error_kind", entry.ErrorKind,
		"error", entry.ErrorMsg,
		"duration_ms", entry.Duration.Milliseconds(),
	)
}
