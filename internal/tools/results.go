package tools

import (
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// ErrorBody is the payload of a failed tool call
type ErrorBody struct {
	Kind    types.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// ErrorResponse wraps ErrorBody as {"error":{...}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// JSONResult encodes v as the text content of a successful tool result
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(types.WrapError(types.KindInternalError, err, "failed to encode result")), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult converts err into an error tool result. Internal failures are
// reported without detail.
func ErrorResult(err error) *mcp.CallToolResult {
	if types.KindOf(err) == types.KindInternalError {
		slog.Error("internal tool failure", "error", err)
	}
	body := ErrorResponse{Error: ErrorBody{
		Kind:    types.KindOf(err),
		Message: types.PublicMessage(err),
	}}
	data, _ := json.Marshal(body)
	return mcp.NewToolResultError(string(data))
}

// ResultText returns the text content of a tool result
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// DecodeResult splits a tool result into its JSON payload or the error it carries
func DecodeResult(result *mcp.CallToolResult) (json.RawMessage, error) {
	if result == nil {
		return nil, types.NewError(types.KindInternalError, "empty tool result")
	}
	text := ResultText(result)
	if !result.IsError {
		if text == "" {
			text = "null"
		}
		return json.RawMessage(text), nil
	}

	var resp ErrorResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil || resp.Error.Kind == "" {
		return nil, types.NewError(types.KindInternalError, "%s", text)
	}
	return nil, types.NewError(resp.Error.Kind, "%s", resp.Error.Message)
}
