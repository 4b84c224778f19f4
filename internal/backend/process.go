package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// ProcessRuntime runs commands as local child processes through /bin/sh.
// Each run gets its own process group so signals reach every descendant.
type ProcessRuntime struct {
	Shell  string
	logger *slog.Logger
}

// NewProcessRuntime creates a process runtime
func NewProcessRuntime(logger *slog.Logger) *ProcessRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessRuntime{Shell: "/bin/sh", logger: logger}
}

// Name returns the runtime identifier
func (p *ProcessRuntime) Name() string { return "process" }

// Spawn starts the command. The child is not bound to ctx; it lives until
// terminated, killed, or it exits on its own.
func (p *ProcessRuntime) Spawn(ctx context.Context, spec SpawnSpec) (Handle, error) {
	if spec.Command == "" {
		return nil, errors.New("command is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.Shell, "-c", spec.Command)
	cmd.Dir = spec.Cwd
	cmd.Env = buildEnv(os.Environ(), spec.Env, spec.Port)
	setProcessGroup(cmd)

	// sh -c starts fine and exits 127 for a missing program; fail here instead.
	if name := programOf(spec.Command); name != "" {
		if _, err := lookProgram(name, cmd.Env, spec.Cwd); err != nil {
			return nil, fmt.Errorf("failed to start %q: %w", spec.Command, err)
		}
	}

	outR, outW, errR, errW, err := pipePair()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, fmt.Errorf("failed to start %q: %w", spec.Command, err)
	}
	outW.Close()
	errW.Close()

	h := &processHandle{
		cmd:    cmd,
		stdout: outR,
		stderr: errR,
		exit:   newExitState(),
	}

	go func() {
		status := exitStatus(cmd.Wait())
		// Descendants that outlived the shell would hold the port and the pipes.
		if err := signalGroup(cmd.Process.Pid, true); err != nil && !errors.Is(err, errNoProcess) {
			p.logger.Debug("failed to reap process group",
				"session_id", spec.SessionID,
				"pid", cmd.Process.Pid,
				"error", err)
		}
		h.exit.finish(status)
	}()

	return h, nil
}

type processHandle struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	exit   *exitState
}

func (h *processHandle) PID() int { return h.cmd.Process.Pid }
func (h *processHandle) ContainerID() string { return "" }
func (h *processHandle) Stdout() io.ReadCloser { return h.stdout }
func (h *processHandle) Stderr() io.ReadCloser { return h.stderr }
func (h *processHandle) Done() <-chan struct{} { return h.exit.done }
func (h *processHandle) Wait() ExitStatus { return h.exit.wait() }
func (h *processHandle) Terminate() error { return h.signal(false) }
func (h *processHandle) Kill() error { return h.signal(true) }

func (h *processHandle) signal(kill bool) error {
	select {
	case <-h.exit.done:
		return nil
	default:
	}
	err := signalGroup(h.cmd.Process.Pid, kill)
	if errors.Is(err, errNoProcess) {
		return nil
	}
	return err
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code, sig := decodeState(exitErr.ProcessState)
		return ExitStatus{Code: code, Signal: sig}
	}
	return ExitStatus{Code: -1, Err: err}
}
