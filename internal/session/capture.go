package session

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/backend"
	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// maxLineSize bounds a single captured line
const maxLineSize = 1024 * 1024

// run is the live state of one spawn of a session. Fields after handle are guarded by Orchestrator.mu.
type run struct {
	handle   backend.Handle
	port     int
	finished chan struct{}

	ready         bool
	stopRequested bool
	killErr       error
	readyTimer    *time.Timer
	killTimer     *time.Timer
}

type chunk struct {
	stream types.StreamOrigin
	text   string
}

// launch spawns the session's command and wires up capture. On failure the
// session is recorded as errored, its port is released, and SpawnFailure returned.
func (o *Orchestrator) launch(ctx context.Context, info *types.SessionInfo) (*types.SessionInfo, error) {
	rt, err := o.runtimes.Get(info.Runtime)
	if err == nil {
		var handle backend.Handle
		handle, err = rt.Spawn(ctx, backend.SpawnSpec{
			SessionID: info.ID,
			Command:   info.Command,
			Cwd:       info.Cwd,
			Env:       info.Env,
			Port:      info.Port,
			Category:  info.Category,
		})
		if err == nil {
			return o.attach(info, handle), nil
		}
	}

	o.ports.ReleaseOwned(info.Port, info.ID)
	now := o.now()
	if _, uerr := o.store.Update(info.ID, func(s *types.SessionInfo) error {
		s.State = types.StateError
		s.Error = err.Error()
		s.CompletedAt = &now
		s.PID = 0
		s.ContainerID = ""
		return nil
	}); uerr != nil {
		o.logger.Error("failed to record spawn failure", "session_id", info.ID, "error", uerr)
	}
	o.system(info.ID, "spawn failed: %v", err)
	o.logger.Error("failed to spawn session",
		"session_id", info.ID,
		"command", info.Command,
		"error", err)

	return nil, types.WrapError(types.KindSpawnFailure, err, "failed to spawn %q", info.Command)
}

// attach registers a spawned handle and starts its capture goroutines
func (o *Orchestrator) attach(info *types.SessionInfo, handle backend.Handle) *types.SessionInfo {
	r := &run{
		handle:   handle,
		port:     info.Port,
		finished: make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[info.ID] = r
	o.mu.Unlock()

	updated, err := o.store.Update(info.ID, func(s *types.SessionInfo) error {
		s.PID = handle.PID()
		s.ContainerID = handle.ContainerID()
		return nil
	})
	if err != nil {
		updated = info
	}
	o.system(info.ID, config.LogSpawned, info.Command, info.Runtime, info.Port)

	chunks := make(chan chunk, o.opts.OutputQueue)
	var readers sync.WaitGroup
	readers.Add(2)
	go o.readStream(handle.Stdout(), types.StreamStdout, chunks, &readers)
	go o.readStream(handle.Stderr(), types.StreamStderr, chunks, &readers)
	go func() {
		readers.Wait()
		close(chunks)
	}()

	consumed := make(chan struct{})
	go o.consume(info.ID, r, chunks, consumed)

	o.mu.Lock()
	r.readyTimer = time.AfterFunc(o.opts.ReadyGrace, func() {
		select {
		case <-handle.Done():
			return
		default:
		}
		o.markReady(info.ID, r, "still running after ready grace")
	})
	o.mu.Unlock()

	go o.await(info.ID, r, consumed)

	return o.snapshot(updated)
}

// readStream forwards lines from one output stream into the session's capture channel
func (o *Orchestrator) readStream(rc io.ReadCloser, stream types.StreamOrigin, out chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		out <- chunk{stream: stream, text: scanner.Text()}
	}
	if scanner.Err() != nil {
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, rc)
	}
}

// consume is the single writer of a session's log buffer
func (o *Orchestrator) consume(sessionID string, r *run, chunks <-chan chunk, done chan<- struct{}) {
	defer close(done)
	for c := range chunks {
		if _, err := o.logs.Append(sessionID, c.stream, c.text); err != nil {
			continue
		}
		if phrase := o.matchReady(c.text); phrase != "" {
			o.markReady(sessionID, r, "matched "+phrase)
		}
	}
}

func (o *Orchestrator) matchReady(line string) string {
	lower := strings.ToLower(line)
	for _, p := range o.phrases {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

// markReady moves a starting session to running once per run
func (o *Orchestrator) markReady(sessionID string, r *run, reason string) {
	o.mu.Lock()
	if r.ready || o.runs[sessionID] != r {
		o.mu.Unlock()
		return
	}
	r.ready = true
	if r.readyTimer != nil {
		r.readyTimer.Stop()
	}
	o.mu.Unlock()

	now := o.now()
	changed := false
	_, err := o.store.Update(sessionID, func(s *types.SessionInfo) error {
		if s.State == types.StateStarting {
			s.State = types.StateRunning
			s.ReadyAt = &now
			changed = true
		}
		return nil
	})
	if err != nil || !changed {
		return
	}

	o.system(sessionID, config.LogReady, reason)
	o.logger.Info("session ready", "session_id", sessionID, "reason", reason)
}

// await waits for the run to exit, drains its output and finalizes the session
func (o *Orchestrator) await(sessionID string, r *run, consumed <-chan struct{}) {
	status := r.handle.Wait()

	o.mu.Lock()
	if r.readyTimer != nil {
		r.readyTimer.Stop()
	}
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
	o.mu.Unlock()

	select {
	case <-consumed:
	case <-time.After(o.opts.DrainTimeout):
		// Something still holds the pipes open; stop reading.
		r.handle.Stdout().Close()
		r.handle.Stderr().Close()
		<-consumed
	}

	o.finalize(sessionID, r, status)
}

func (o *Orchestrator) finalize(sessionID string, r *run, status backend.ExitStatus) {
	o.mu.Lock()
	stopRequested := r.stopRequested
	killErr := r.killErr
	if o.runs[sessionID] == r {
		delete(o.runs, sessionID)
	}
	o.mu.Unlock()

	o.ports.ReleaseOwned(r.port, sessionID)

	state := types.StateStopped
	errMsg := ""
	if !stopRequested && !status.Success() {
		state = types.StateError
		errMsg = "process exited unexpectedly (" + status.String() + ")"
	}
	if killErr != nil {
		errMsg = "forced kill failed: " + killErr.Error()
	}

	now := o.now()
	_, err := o.store.Update(sessionID, func(s *types.SessionInfo) error {
		s.State = state
		s.CompletedAt = &now
		s.PID = 0
		s.ContainerID = ""
		s.ExitSignal = status.Signal
		s.ExitCode = nil
		if status.Signal == "" && status.Err == nil {
			code := status.Code
			s.ExitCode = &code
		}
		if errMsg != "" {
			s.Error = errMsg
		}
		return nil
	})
	if err != nil {
		o.logger.Debug("session removed before exit was recorded", "session_id", sessionID)
	}

	o.system(sessionID, config.LogExited, status.String())

	logFn := o.logger.Info
	if state == types.StateError {
		logFn = o.logger.Warn
	}
	logFn("session exited",
		"session_id", sessionID,
		"state", state,
		"exit", status.String(),
		"stop_requested", stopRequested)

	close(r.finished)
}
