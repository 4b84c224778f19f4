package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Mock implementations for testing
type mockOrchestrator struct {
	startReq   *types.StartRequest
	startRes   *types.StartResult
	stopID     string
	stopOpts   types.StopOptions
	restartID  string
	restarted  *types.SessionInfo
	err        error
	startCalls int
}

func (m *mockOrchestrator) Start(ctx context.Context, req *types.StartRequest) (*types.StartResult, error) {
	m.startCalls++
	m.startReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.startRes, nil
}

func (m *mockOrchestrator) Stop(ctx context.Context, id string, opts types.StopOptions) (*types.StopResult, error) {
	m.stopID = id
	m.stopOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return &types.StopResult{Success: true, Message: "Session stopped", State: types.StateStopped}, nil
}

func (m *mockOrchestrator) Restart(ctx context.Context, id string) (*types.SessionInfo, error) {
	m.restartID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.restarted, nil
}

func (m *mockOrchestrator) Status(id string) (*types.SessionInfo, error) {
	return nil, types.ErrSessionNotFound
}

func (m *mockOrchestrator) List() []*types.SessionInfo {
	return nil
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func errorBody(t *testing.T, result *mcp.CallToolResult) tools.ErrorBody {
	t.Helper()
	if !result.IsError {
		t.Fatalf("Expected error result, got %s", tools.ResultText(result))
	}
	var resp tools.ErrorResponse
	if err := json.Unmarshal([]byte(tools.ResultText(result)), &resp); err != nil {
		t.Fatalf("Expected JSON error body, got %q", tools.ResultText(result))
	}
	return resp.Error
}

func TestStartHandler(t *testing.T) {
	orch := &mockOrchestrator{startRes: &types.StartResult{
		Session: &types.SessionInfo{
			ID:        "sess-1",
			PID:       4242,
			Port:      3001,
			State:     types.StateStarting,
			Category:  "node",
			Framework: "vite",
		},
		PortSubstituted: true,
		RequestedPort:   3000,
		Message:         "Session sess-1 starting on port 3001",
	}}
	handler := NewStartHandler(orch)

	result, err := handler.Handle(context.Background(), callRequest("start", map[string]interface{}{
		"cwd":   "/srv/app",
		"port":  float64(3000),
		"env":   map[string]interface{}{"DEBUG": "1", "WORKERS": float64(2)},
		"watch": true,
	}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got %s", tools.ResultText(result))
	}

	req := orch.startReq
	if req.Cwd != "/srv/app" || req.Port != 3000 || !req.Watch {
		t.Errorf("Expected parsed request, got %+v", req)
	}
	if req.Env["DEBUG"] != "1" || req.Env["WORKERS"] != "2" {
		t.Errorf("Expected env coerced to strings, got %v", req.Env)
	}

	var resp StartResponse
	if err := json.Unmarshal([]byte(tools.ResultText(result)), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "sess-1" || resp.Port != 3001 || resp.Status != "starting" {
		t.Errorf("Expected session fields, got %+v", resp)
	}
	if !resp.PortSubstituted || resp.RequestedPort != 3000 {
		t.Errorf("Expected substitution report, got %+v", resp)
	}
}

func TestStartHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing cwd", map[string]interface{}{}},
		{"cwd not string", map[string]interface{}{"cwd": 12}},
		{"port too large", map[string]interface{}{"cwd": "/srv", "port": float64(70000)}},
		{"port fractional", map[string]interface{}{"cwd": "/srv", "port": 80.5}},
		{"port negative", map[string]interface{}{"cwd": "/srv", "port": float64(-1)}},
		{"env not object", map[string]interface{}{"cwd": "/srv", "env": "A=1"}},
		{"env nested", map[string]interface{}{"cwd": "/srv", "env": map[string]interface{}{"A": map[string]interface{}{}}}},
		{"bad runtime", map[string]interface{}{"cwd": "/srv", "runtime": "vm"}},
		{"bad watch", map[string]interface{}{"cwd": "/srv", "watch": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &mockOrchestrator{}
			result, err := NewStartHandler(orch).Handle(context.Background(), callRequest("start", tt.args))
			if err != nil {
				t.Fatalf("Handler returned error: %v", err)
			}
			body := errorBody(t, result)
			if body.Kind != types.KindInvalidParams {
				t.Errorf("Expected InvalidParams, got %s", body.Kind)
			}
			if orch.startCalls != 0 {
				t.Error("Expected orchestrator not to be called")
			}
		})
	}
}

func TestStartHandlerPortAsString(t *testing.T) {
	orch := &mockOrchestrator{startRes: &types.StartResult{Session: &types.SessionInfo{ID: "s"}}}
	_, _ = NewStartHandler(orch).Handle(context.Background(), callRequest("start", map[string]interface{}{
		"cwd":  "/srv",
		"port": "8080",
	}))
	if orch.startReq == nil || orch.startReq.Port != 8080 {
		t.Errorf("Expected port 8080, got %+v", orch.startReq)
	}
}

func TestStartHandlerDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		kind    types.ErrorKind
		message string
	}{
		{types.NewError(types.KindUnknownProjectType, "no supported project type in /srv"), types.KindUnknownProjectType, "no supported project type in /srv"},
		{types.NewError(types.KindPortRangeExhausted, "no free port in node band"), types.KindPortRangeExhausted, "no free port in node band"},
		{errors.New("mutex poisoned at 0xdeadbeef"), types.KindInternalError, "internal error"},
	}

	for _, tt := range tests {
		orch := &mockOrchestrator{err: tt.err}
		result, _ := NewStartHandler(orch).Handle(context.Background(), callRequest("start", map[string]interface{}{"cwd": "/srv"}))
		body := errorBody(t, result)
		if body.Kind != tt.kind {
			t.Errorf("Expected %s, got %s", tt.kind, body.Kind)
		}
		if body.Message != tt.message {
			t.Errorf("Expected message %q, got %q", tt.message, body.Message)
		}
	}
}

func TestStopHandler(t *testing.T) {
	orch := &mockOrchestrator{}
	result, err := NewStopHandler(orch).Handle(context.Background(), callRequest("stop", map[string]interface{}{
		"sessionId":    "sess-1",
		"force":        true,
		"wait_seconds": float64(3),
	}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if orch.stopID != "sess-1" {
		t.Errorf("Expected alias to resolve to sess-1, got %q", orch.stopID)
	}
	if !orch.stopOpts.Force || orch.stopOpts.Wait != 3*time.Second {
		t.Errorf("Expected force with 3s wait, got %+v", orch.stopOpts)
	}

	var resp StopResponse
	if err := json.Unmarshal([]byte(tools.ResultText(result)), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Status != "stopped" {
		t.Errorf("Expected stopped success, got %+v", resp)
	}
}

func TestStopHandlerValidation(t *testing.T) {
	orch := &mockOrchestrator{}
	handler := NewStopHandler(orch)

	for _, args := range []map[string]interface{}{
		{},
		{"session_id": ""},
		{"session_id": "s", "wait_seconds": float64(-1)},
		{"session_id": "s", "wait_seconds": float64(100000)},
		{"session_id": "s", "force": "maybe"},
	} {
		result, _ := handler.Handle(context.Background(), callRequest("stop", args))
		if body := errorBody(t, result); body.Kind != types.KindInvalidParams {
			t.Errorf("Expected InvalidParams for %v, got %s", args, body.Kind)
		}
	}
	if orch.stopID != "" {
		t.Error("Expected orchestrator not to be called")
	}
}

func TestStopHandlerNotFound(t *testing.T) {
	orch := &mockOrchestrator{err: types.NewError(types.KindSessionNotFound, "session %s not found", "nope")}
	result, _ := NewStopHandler(orch).Handle(context.Background(), callRequest("stop", map[string]interface{}{"session_id": "nope"}))
	if body := errorBody(t, result); body.Kind != types.KindSessionNotFound {
		t.Errorf("Expected SessionNotFound, got %s", body.Kind)
	}
}

func TestRestartHandler(t *testing.T) {
	orch := &mockOrchestrator{restarted: &types.SessionInfo{
		ID:       "sess-1",
		State:    types.StateStarting,
		Port:     3001,
		Restarts: 2,
	}}
	result, err := NewRestartHandler(orch).Handle(context.Background(), callRequest("restart", map[string]interface{}{"session_id": "sess-1"}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	text := tools.ResultText(result)
	for _, want := range []string{`"session_id":"sess-1"`, `"restarts":2`, `"port":3001`, `"status":"starting"`} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %s in %s", want, text)
		}
	}

	result, _ = NewRestartHandler(orch).Handle(context.Background(), callRequest("restart", nil))
	if body := errorBody(t, result); body.Kind != types.KindInvalidParams {
		t.Errorf("Expected InvalidParams, got %s", body.Kind)
	}
}
