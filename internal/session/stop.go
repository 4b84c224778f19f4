package session

import (
	"context"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Stop asks a session to exit. Without Force the run gets the stop grace period
// to exit on SIGTERM before it is killed. Stopping a finished session succeeds
// without doing anything.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string, opts types.StopOptions) (*types.StopResult, error) {
	// startMu orders this stop against a spawn in flight for the same session.
	o.startMu.Lock()
	info, err := o.store.Get(sessionID)
	if err != nil {
		o.startMu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	o.userStops[sessionID] = true
	r := o.runs[sessionID]
	o.startMu.Unlock()
	if r == nil {
		o.mu.Unlock()
		o.stopWatch(sessionID)
		return &types.StopResult{
			Success: true,
			Message: config.MsgAlreadyStopped,
			State:   info.State,
		}, nil
	}
	first := !r.stopRequested
	r.stopRequested = true
	o.mu.Unlock()

	// A user stop ends watch mode; a watch-triggered restart goes through stopRun.
	o.stopWatch(sessionID)
	o.stopRun(sessionID, r, opts.Force, first)

	if opts.Wait > 0 {
		timer := time.NewTimer(opts.Wait)
		select {
		case <-r.finished:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	snapshot, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	msg := config.MsgStopInitiated
	if snapshot.State.Terminal() {
		msg = config.MsgStopped
	}
	return &types.StopResult{
		Success: true,
		Message: msg,
		State:   snapshot.State,
	}, nil
}

// stopRun signals a run. first is false when a stop was already in progress,
// in which case only a Force escalation has any effect.
func (o *Orchestrator) stopRun(sessionID string, r *run, force, first bool) {
	if !first && !force {
		return
	}

	if _, err := o.store.Update(sessionID, func(s *types.SessionInfo) error {
		if s.State.Active() {
			s.State = types.StateStopping
		}
		return nil
	}); err != nil {
		o.logger.Debug("failed to mark session stopping", "session_id", sessionID, "error", err)
	}
	o.system(sessionID, config.LogStopRequested, force)
	o.logger.Info("stopping session", "session_id", sessionID, "force", force)

	if force {
		o.kill(sessionID, r)
		return
	}

	if err := r.handle.Terminate(); err != nil {
		o.logger.Warn("graceful stop failed, killing",
			"session_id", sessionID,
			"error", err)
		o.kill(sessionID, r)
		return
	}

	o.mu.Lock()
	r.killTimer = time.AfterFunc(o.opts.StopGrace, func() {
		select {
		case <-r.handle.Done():
			return
		default:
		}
		o.system(sessionID, config.LogKillEscalated)
		o.logger.Info("stop grace expired", "session_id", sessionID, "grace", o.opts.StopGrace)
		o.kill(sessionID, r)
	})
	o.mu.Unlock()
}

// kill forces a run to exit. A failure is recorded on the session.
func (o *Orchestrator) kill(sessionID string, r *run) {
	err := r.handle.Kill()
	if err == nil {
		return
	}

	o.logger.Error("failed to kill session",
		"session_id", sessionID,
		"error", err)

	o.mu.Lock()
	r.killErr = err
	o.mu.Unlock()

	if _, uerr := o.store.Update(sessionID, func(s *types.SessionInfo) error {
		s.Error = "forced kill failed: " + err.Error()
		return nil
	}); uerr != nil {
		o.logger.Debug("failed to record kill failure", "session_id", sessionID, "error", uerr)
	}
}

// Restart stops the session if it is running and launches it again with the
// same command, environment and runtime. The session keeps its ID and log
// buffer; the previous port is preferred.
func (o *Orchestrator) Restart(ctx context.Context, sessionID string) (*types.SessionInfo, error) {
	return o.restart(ctx, sessionID, "requested")
}

func (o *Orchestrator) restart(ctx context.Context, sessionID, reason string) (*types.SessionInfo, error) {
	if _, err := o.store.Get(sessionID); err != nil {
		return nil, err
	}

	o.mu.Lock()
	delete(o.userStops, sessionID)
	r := o.runs[sessionID]
	first := false
	if r != nil {
		first = !r.stopRequested
		r.stopRequested = true
	}
	o.mu.Unlock()

	o.system(sessionID, config.LogRestarting, reason)
	o.logger.Info("restarting session", "session_id", sessionID, "reason", reason)

	if r != nil {
		o.stopRun(sessionID, r, false, first)

		wait := time.NewTimer(o.opts.StopGrace + o.opts.RestartSlack)
		defer wait.Stop()
		select {
		case <-r.finished:
		case <-wait.C:
			return nil, types.NewError(types.KindInternalError, "session %s did not stop within %v", sessionID, o.opts.StopGrace+o.opts.RestartSlack)
		case <-ctx.Done():
			return nil, types.WrapError(types.KindInternalError, ctx.Err(), "restart of %s interrupted", sessionID)
		}
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	info, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	_, relaunched := o.runs[sessionID]
	stopped := o.userStops[sessionID]
	o.mu.Unlock()
	if relaunched {
		return o.snapshot(info), nil
	}
	if stopped {
		o.system(sessionID, config.LogRestartCancelled)
		o.logger.Info("restart cancelled by stop", "session_id", sessionID)
		return o.snapshot(info), nil
	}

	alloc, err := o.ports.Allocate(info.Category, info.Port, sessionID)
	if err != nil {
		now := o.now()
		_, _ = o.store.Update(sessionID, func(s *types.SessionInfo) error {
			s.State = types.StateError
			s.Error = err.Error()
			s.CompletedAt = &now
			return nil
		})
		return nil, err
	}

	now := o.now()
	info, err = o.store.Update(sessionID, func(s *types.SessionInfo) error {
		s.Port = alloc.Port
		s.State = types.StateStarting
		s.StartedAt = now
		s.ReadyAt = nil
		s.CompletedAt = nil
		s.ExitCode = nil
		s.ExitSignal = ""
		s.Error = ""
		s.Restarts++
		return nil
	})
	if err != nil {
		o.ports.ReleaseOwned(alloc.Port, sessionID)
		return nil, err
	}

	return o.launch(ctx, info)
}
