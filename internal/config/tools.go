package config

// Tool names exposed by the gateway
const (
	// ToolStart launches a development server
	ToolStart = "start"
	// ToolStop terminates a session
	ToolStop = "stop"
	// ToolRestart stops and relaunches a session
	ToolRestart = "restart"
	// ToolStatus returns a session snapshot
	ToolStatus = "status"
	// ToolLogs returns buffered session output
	ToolLogs = "logs"
	// ToolList returns all known sessions
	ToolList = "list"
)

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return []string{
		ToolStart,
		ToolStop,
		ToolRestart,
		ToolStatus,
		ToolLogs,
		ToolList,
	}
}

// Runtime names
const (
	RuntimeProcess = "process"
	RuntimeDocker  = "docker"
)

// Port band categories
const (
	CategorySystem = "system"
	CategoryNode   = "node"
	CategoryPython = "python"
	CategoryGo     = "golang"
	CategoryStatic = "static"
	CategoryCustom = "custom"
)

// Tool parameter names
const (
	ParamSessionID      = "session_id"
	ParamSessionIDAlias = "sessionId"
	ParamCwd            = "cwd"
	ParamCommand        = "command"
	ParamPort           = "port"
	ParamEnv            = "env"
	ParamName           = "name"
	ParamCategory       = "category"
	ParamRuntime        = "runtime"
	ParamWatch          = "watch"
	ParamForce          = "force"
	ParamWaitSeconds    = "wait_seconds"
	ParamLimit          = "limit"
	ParamFilter         = "filter"
	ParamStream         = "stream"
	ParamBacklog        = "backlog"
)

// MaxStopWaitSeconds caps how long a stop call may block
const MaxStopWaitSeconds = 300
