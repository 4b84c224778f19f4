package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"
)

// ContainerPrefix names the containers this runtime creates
const ContainerPrefix = "devserver-"

// dockerControlTimeout bounds docker kill invocations
const dockerControlTimeout = 10 * time.Second

// RunOptions configures a docker run invocation
type RunOptions struct {
	Image   string            // Docker image to run
	Name    string            // container name (--name)
	Command string            // shell command run with sh -c inside the container
	Env     map[string]string // environment variables (-e K=V)
	Port    int               // published as port:port
	Mount   string            // host directory mounted at Workdir
	Workdir string            // working directory inside the container (-w)
}

// DockerRuntime runs sessions inside containers through the Docker CLI.
// The project directory is bind-mounted so edits on the host are visible.
type DockerRuntime struct {
	// Binary is the docker executable
	Binary string
	// Images maps a port band category to an image
	Images map[string]string
	// DefaultImage is used when no category image is configured
	DefaultImage string

	logger *slog.Logger
}

// NewDockerRuntime creates a docker runtime
func NewDockerRuntime(images map[string]string, logger *slog.Logger) *DockerRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerRuntime{
		Binary:       "docker",
		Images:       images,
		DefaultImage: "ubuntu:24.04",
		logger:       logger,
	}
}

// Name returns the runtime identifier
func (d *DockerRuntime) Name() string { return "docker" }

// Preflight checks that the Docker daemon is reachable by running docker info.
// Returns ErrDockerUnavailable if the daemon cannot be contacted.
func (d *DockerRuntime) Preflight(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, d.Binary, "info")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %w", ErrDockerUnavailable, err)
	}
	return nil
}

// ContainerName returns the deterministic container name for a session
func ContainerName(sessionID string) string {
	id := sessionID
	if len(id) > 12 {
		id = id[:12]
	}
	return ContainerPrefix + id
}

func (d *DockerRuntime) image(category string) string {
	if img, ok := d.Images[category]; ok && img != "" {
		return img
	}
	return d.DefaultImage
}

// runCmdArgs returns the docker CLI arguments for a run invocation
func runCmdArgs(opts RunOptions) []string {
	args := []string{"run", "--rm", "--init"}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Port > 0 {
		p := strconv.Itoa(opts.Port)
		args = append(args, "-p", p+":"+p)
	}
	if opts.Mount != "" {
		args = append(args, "-v", opts.Mount+":"+opts.Workdir)
	}
	if opts.Workdir != "" {
		args = append(args, "-w", opts.Workdir)
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	if opts.Port > 0 {
		args = append(args, "-e", "PORT="+strconv.Itoa(opts.Port))
	}

	args = append(args, opts.Image, "sh", "-c", opts.Command)
	return args
}

// killCmdArgs returns the docker CLI arguments for a kill invocation
func killCmdArgs(container string, graceful bool) []string {
	if graceful {
		return []string{"kill", "--signal", "TERM", container}
	}
	return []string{"kill", container}
}

// Spawn starts docker run in the background and streams the container's output
func (d *DockerRuntime) Spawn(ctx context.Context, spec SpawnSpec) (Handle, error) {
	if spec.Command == "" {
		return nil, errors.New("command is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := RunOptions{
		Image:   d.image(spec.Category),
		Name:    ContainerName(spec.SessionID),
		Command: spec.Command,
		Env:     spec.Env,
		Port:    spec.Port,
		Mount:   spec.Cwd,
		Workdir: "/app",
	}

	cmd := exec.Command(d.Binary, runCmdArgs(opts)...)
	cmd.Env = os.Environ()
	setProcessGroup(cmd)

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
		return nil, fmt.Errorf("docker run: %w", err)
	}
	outW.Close()
	errW.Close()

	h := &dockerHandle{
		runtime: d,
		cmd:     cmd,
		name:    opts.Name,
		stdout:  outR,
		stderr:  errR,
		exit:    newExitState(),
	}

	go func() {
		h.exit.finish(exitStatus(cmd.Wait()))
	}()

	d.logger.Debug("container started",
		"session_id", spec.SessionID,
		"container", opts.Name,
		"image", opts.Image)

	return h, nil
}

func (d *DockerRuntime) kill(container string, graceful bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), dockerControlTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary, killCmdArgs(container, graceful)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker kill %s: %w: %s", container, err, out)
	}
	return nil
}

type dockerHandle struct {
	runtime *DockerRuntime
	cmd     *exec.Cmd
	name    string
	stdout  *os.File
	stderr  *os.File
	exit    *exitState
}

func (h *dockerHandle) PID() int { return h.cmd.Process.Pid }
func (h *dockerHandle) ContainerID() string { return h.name }
func (h *dockerHandle) Stdout() io.ReadCloser { return h.stdout }
func (h *dockerHandle) Stderr() io.ReadCloser { return h.stderr }
func (h *dockerHandle) Done() <-chan struct{} { return h.exit.done }
func (h *dockerHandle) Wait() ExitStatus { return h.exit.wait() }

// Terminate sends SIGTERM to the container's init process
func (h *dockerHandle) Terminate() error {
	if h.exited() {
		return nil
	}
	return h.runtime.kill(h.name, true)
}

// Kill removes the container. If the daemon refuses, the CLI process is killed
// so the session still reaches a terminal state.
func (h *dockerHandle) Kill() error {
	if h.exited() {
		return nil
	}
	err := h.runtime.kill(h.name, false)
	if err != nil {
		if gerr := signalGroup(h.cmd.Process.Pid, true); gerr != nil && !errors.Is(gerr, errNoProcess) {
			return errors.Join(err, gerr)
		}
	}
	return err
}

func (h *dockerHandle) exited() bool {
	select {
	case <-h.exit.done:
		return true
	default:
		return false
	}
}
