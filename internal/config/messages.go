package config

// Messages returned to callers and written to the system log stream
const (
	// MsgSessionStarting is the format string for a freshly spawned session
	MsgSessionStarting = "Session %s starting on port %d"
	// MsgAlreadyRunning is the format string for an idempotent start
	MsgAlreadyRunning = "Session %s is already running on port %d"
	// MsgPortSubstituted is the format string appended when the requested port was unavailable
	MsgPortSubstituted = "requested port %d unavailable, using %d"
	// MsgStopInitiated is the message for a stop that was started but not awaited
	MsgStopInitiated = "Stop initiated"
	// MsgStopped is the message for a session that reached stopped
	MsgStopped = "Session stopped"
	// MsgAlreadyStopped is the message for a stop on a finished session
	MsgAlreadyStopped = "Session already stopped"

	// LogSpawned is the system log line after spawn
	LogSpawned = "spawned %q (runtime=%s, port=%d)"
	// LogReady is the system log line when readiness is detected
	LogReady = "session ready (%s)"
	// LogStopRequested is the system log line when a stop is initiated
	LogStopRequested = "stop requested (force=%t)"
	// LogKillEscalated is the system log line when the grace period expires
	LogKillEscalated = "grace period expired, killing"
	// LogExited is the system log line when the process exits
	LogExited = "process exited (%s)"
	// LogRestarting is the system log line when a restart begins
	LogRestarting = "restarting (%s)"
	// LogRestartCancelled is the system log line when a stop overtakes a pending restart
	LogRestartCancelled = "restart cancelled, session was stopped"
)
