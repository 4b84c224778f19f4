package config

import "time"

// Default timing configurations used throughout the orchestrator
const (
	// DefaultStopGrace is how long a session gets to exit after the graceful signal
	DefaultStopGrace = 5 * time.Second

	// DefaultReadyGrace is how long a process must stay alive without printing a
	// readiness phrase before it is assumed to be running
	DefaultReadyGrace = 10 * time.Second

	// DefaultRestartSlack is added to the stop grace when restart waits for the old run to exit
	DefaultRestartSlack = 2 * time.Second

	// DefaultDrainTimeout bounds how long exit handling waits for output readers to finish
	DefaultDrainTimeout = 2 * time.Second

	// DefaultRetention is how long completed sessions are kept for history
	DefaultRetention = 1 * time.Hour

	// DefaultCleanupInterval is how often the retention sweep runs
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultWatchDebounce coalesces bursts of file change events
	DefaultWatchDebounce = 500 * time.Millisecond

	// DefaultShutdownTimeout bounds graceful daemon shutdown
	DefaultShutdownTimeout = 10 * time.Second
)
