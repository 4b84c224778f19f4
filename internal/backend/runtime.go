// Package backend runs development server commands. A Runtime spawns a command
// and returns a Handle that can be signalled, killed and waited on; the process
// and docker runtimes are the two implementations.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// ErrUnknownRuntime is returned by a Registry for an unregistered runtime name
var ErrUnknownRuntime = errors.New("unknown runtime")

// ErrDockerUnavailable is returned when the Docker daemon cannot be reached
var ErrDockerUnavailable = errors.New("docker is not available")

// SpawnSpec describes one run of a session
type SpawnSpec struct {
	SessionID string
	Command   string
	Cwd       string
	Env       map[string]string
	Port      int
	Category  string
}

// ExitStatus describes how a run ended
type ExitStatus struct {
	Code   int
	Signal string
	// Err is set when the wait itself failed rather than the process exiting
	Err error
}

// Success reports a clean zero exit
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == "" && s.Err == nil
}

func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return "wait failed: " + s.Err.Error()
	case s.Signal != "":
		return "signal " + s.Signal
	default:
		return "exit code " + strconv.Itoa(s.Code)
	}
}

// Handle controls a spawned run
type Handle interface {
	// PID is the local process id, 0 if there is none
	PID() int
	// ContainerID is set by container runtimes
	ContainerID() string
	// Stdout and Stderr are read until EOF by the caller, who closes them
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Terminate asks the run to exit
	Terminate() error
	// Kill forces the run to exit
	Kill() error
	// Done is closed once the run has exited
	Done() <-chan struct{}
	// Wait blocks until exit. It may be called more than once.
	Wait() ExitStatus
}

// Runtime spawns runs
type Runtime interface {
	Name() string
	Spawn(ctx context.Context, spec SpawnSpec) (Handle, error)
}

// Registry maps runtime names to runtimes
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with the given runtimes
func NewRegistry(runtimes ...Runtime) *Registry {
	r := &Registry{runtimes: make(map[string]Runtime, len(runtimes))}
	for _, rt := range runtimes {
		r.runtimes[rt.Name()] = rt
	}
	return r
}

// Get returns the runtime registered under name
func (r *Registry) Get(name string) (Runtime, error) {
	rt, ok := r.runtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, name)
	}
	return rt, nil
}

// Names returns the registered runtime names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildEnv overlays the session environment and PORT on the daemon's environment
func buildEnv(base []string, overlay map[string]string, port int) []string {
	env := make([]string, 0, len(base)+len(overlay)+1)
	skip := make(map[string]bool, len(overlay)+1)
	for k := range overlay {
		skip[k] = true
	}
	if port > 0 {
		skip["PORT"] = true
	}
	for _, kv := range base {
		key := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		if !skip[key] {
			env = append(env, kv)
		}
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	if port > 0 {
		env = append(env, "PORT="+strconv.Itoa(port))
	}
	return env
}

// exitState tracks the one-time transition to exited
type exitState struct {
	done   chan struct{}
	status ExitStatus
}

func newExitState() *exitState {
	return &exitState{done: make(chan struct{})}
}

func (e *exitState) finish(status ExitStatus) {
	e.status = status
	close(e.done)
}

func (e *exitState) wait() ExitStatus {
	<-e.done
	return e.status
}

// pipePair creates the stdout and stderr pipes for a child. The write ends are
// handed to the child and closed in the parent after start.
func pipePair() (outR, outW, errR, errW *os.File, err error) {
	outR, outW, err = os.Pipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err = os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return outR, outW, errR, errW, nil
}
