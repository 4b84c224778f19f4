// Package lifecycle provides the start, stop and restart tool handlers
package lifecycle

// StartResponse is the result of the start tool
type StartResponse struct {
	SessionID       string `json:"session_id"`
	PID             int    `json:"pid,omitempty"`
	ContainerID     string `json:"container_id,omitempty"`
	Port            int    `json:"port"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	AlreadyRunning  bool   `json:"already_running"`
	PortSubstituted bool   `json:"port_substituted"`
	RequestedPort   int    `json:"requested_port,omitempty"`
	Framework       string `json:"framework,omitempty"`
	Category        string `json:"category"`
}

// StopResponse is the result of the stop tool
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// RestartResponse is the result of the restart tool
type RestartResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Port      int    `json:"port"`
	Restarts  int    `json:"restarts"`
}
