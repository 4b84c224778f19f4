// Package types provides shared types used across the devserver-mcp codebase
package types

import (
	"context"
	"time"
)

// SessionState is the lifecycle state of a development session
type SessionState string

// Session lifecycle states
const (
	StateStarting SessionState = "starting"
	StateRunning  SessionState = "running"
	StateStopping SessionState = "stopping"
	StateStopped  SessionState = "stopped"
	StateError    SessionState = "error"
)

// Active reports whether a session in this state still owns a backing process
func (s SessionState) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Terminal reports whether the state is final for the current run
func (s SessionState) Terminal() bool {
	return s == StateStopped || s == StateError
}

// StreamOrigin identifies where a log line came from
type StreamOrigin string

// Stream origins
const (
	StreamStdout StreamOrigin = "stdout"
	StreamStderr StreamOrigin = "stderr"
	StreamSystem StreamOrigin = "system"
)

// ParseStreamOrigin validates a caller supplied stream name. Empty means any stream.
func ParseStreamOrigin(s string) (StreamOrigin, bool) {
	switch StreamOrigin(s) {
	case "", StreamStdout, StreamStderr, StreamSystem:
		return StreamOrigin(s), true
	}
	return "", false
}

// LogEntry is a single captured line of session output
type LogEntry struct {
	Seq       uint64       `json:"seq"`
	SessionID string       `json:"session_id"`
	Stream    StreamOrigin `json:"stream"`
	Timestamp time.Time    `json:"timestamp"`
	Text      string       `json:"text"`
}

// TailQuery selects entries from a session's log buffer
type TailQuery struct {
	Limit  int
	Filter string
	Stream StreamOrigin
}

// SessionInfo is a point-in-time snapshot of a development session
type SessionInfo struct {
	ID            string            `json:"id"`
	Name          string            `json:"name,omitempty"`
	Command       string            `json:"command"`
	Cwd           string            `json:"cwd"`
	Env           map[string]string `json:"env,omitempty"`
	Port          int               `json:"port"`
	Category      string            `json:"category"`
	Framework     string            `json:"framework,omitempty"`
	Runtime       string            `json:"runtime"`
	Watch         bool              `json:"watch,omitempty"`
	PID           int               `json:"pid,omitempty"`
	ContainerID   string            `json:"container_id,omitempty"`
	State         SessionState      `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     time.Time         `json:"started_at"`
	ReadyAt       *time.Time        `json:"ready_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	ExitCode      *int              `json:"exit_code,omitempty"`
	ExitSignal    string            `json:"exit_signal,omitempty"`
	Error         string            `json:"error,omitempty"`
	Restarts      int               `json:"restarts"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

// Clone returns a deep copy of the snapshot
func (s *SessionInfo) Clone() *SessionInfo {
	if s == nil {
		return nil
	}
	c := *s
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	if s.ReadyAt != nil {
		t := *s.ReadyAt
		c.ReadyAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.ExitCode != nil {
		code := *s.ExitCode
		c.ExitCode = &code
	}
	return &c
}

// Uptime returns how long the current run has been alive as of now
func (s *SessionInfo) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// StartRequest describes a session launch
type StartRequest struct {
	Cwd      string
	Command  string
	Port     int
	Env      map[string]string
	Name     string
	Category string
	Runtime  string
	Watch    bool
}

// StartResult is returned from a successful start
type StartResult struct {
	Session         *SessionInfo
	AlreadyRunning  bool
	PortSubstituted bool
	RequestedPort   int
	Message         string
}

// StopOptions controls how a session is stopped
type StopOptions struct {
	// Force skips the graceful signal and kills immediately
	Force bool
	// Wait blocks the call until the session is stopped or the duration elapses
	Wait time.Duration
}

// StopResult is returned from stop
type StopResult struct {
	Success bool
	Message string
	State   SessionState
}

// AuditEntry represents an audit log entry for tool calls and results
type AuditEntry struct {
	CorrelationID string
	SessionID     string
	ToolName      string
	Arguments     map[string]interface{}
	ErrorKind     ErrorKind
	ErrorMsg      string
	Duration      time.Duration
}

// SessionOrchestrator provides the session lifecycle operations used by tool handlers
type SessionOrchestrator interface {
	Start(ctx context.Context, req *StartRequest) (*StartResult, error)
	Stop(ctx context.Context, sessionID string, opts StopOptions) (*StopResult, error)
	Restart(ctx context.Context, sessionID string) (*SessionInfo, error)
	Status(sessionID string) (*SessionInfo, error)
	List() []*SessionInfo
}

// LogReader provides read access to captured session output
type LogReader interface {
	Tail(sessionID string, query TailQuery) ([]LogEntry, error)
}

// AuditLogger provides audit logging operations
type AuditLogger interface {
	LogToolCall(ctx context.Context, entry *AuditEntry)
	LogToolResult(ctx context.Context, entry *AuditEntry)
}
