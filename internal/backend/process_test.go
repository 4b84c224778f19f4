//go:build unix

package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func spawn(t *testing.T, command string, env map[string]string, port int) Handle {
	t.Helper()
	rt := NewProcessRuntime(nil)
	h, err := rt.Spawn(context.Background(), SpawnSpec{
		SessionID: "test",
		Command:   command,
		Cwd:       t.TempDir(),
		Env:       env,
		Port:      port,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	t.Cleanup(func() {
		_ = h.Kill()
		h.Stdout().Close()
		h.Stderr().Close()
	})
	return h
}

func waitExit(t *testing.T, h Handle, timeout time.Duration) ExitStatus {
	t.Helper()
	select {
	case <-h.Done():
		return h.Wait()
	case <-time.After(timeout):
		t.Fatalf("Process did not exit within %v", timeout)
		return ExitStatus{}
	}
}

func TestProcessCapturesOutputAndEnv(t *testing.T) {
	h := spawn(t, `echo "port=$PORT greeting=$GREETING"; echo oops >&2`, map[string]string{"GREETING": "hi"}, 3005)

	if h.PID() <= 0 {
		t.Errorf("Expected a pid, got %d", h.PID())
	}
	if h.ContainerID() != "" {
		t.Errorf("Expected no container id, got %q", h.ContainerID())
	}

	out, err := io.ReadAll(h.Stdout())
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "port=3005 greeting=hi" {
		t.Errorf("Expected env in output, got %q", out)
	}
	errOut, _ := io.ReadAll(h.Stderr())
	if strings.TrimSpace(string(errOut)) != "oops" {
		t.Errorf("Expected stderr oops, got %q", errOut)
	}

	status := waitExit(t, h, 5*time.Second)
	if !status.Success() {
		t.Errorf("Expected success, got %s", status)
	}
}

func TestProcessExitCode(t *testing.T) {
	h := spawn(t, "exit 3", nil, 0)

	status := waitExit(t, h, 5*time.Second)
	if status.Code != 3 {
		t.Errorf("Expected exit code 3, got %d", status.Code)
	}
	if status.String() != "exit code 3" {
		t.Errorf("Expected %q, got %q", "exit code 3", status.String())
	}
	// Wait is repeatable
	if h.Wait().Code != 3 {
		t.Error("Expected repeated Wait to return the same status")
	}
}

func TestProcessTerminate(t *testing.T) {
	h := spawn(t, "sleep 30", nil, 0)

	if err := h.Terminate(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	status := waitExit(t, h, 5*time.Second)
	if status.Signal != "SIGTERM" {
		t.Errorf("Expected SIGTERM, got %s", status)
	}
}

func TestProcessKillIgnoringTerm(t *testing.T) {
	h := spawn(t, `trap "" TERM; echo armed; while true; do sleep 0.1; done`, nil, 0)

	buf := make([]byte, 6)
	if _, err := io.ReadFull(h.Stdout(), buf); err != nil {
		t.Fatal(err)
	}

	_ = h.Terminate()
	select {
	case <-h.Done():
		t.Fatal("Expected process to ignore SIGTERM")
	case <-time.After(300 * time.Millisecond):
	}

	if err := h.Kill(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	status := waitExit(t, h, 5*time.Second)
	if status.Signal != "SIGKILL" {
		t.Errorf("Expected SIGKILL, got %s", status)
	}
}

func TestProcessGroupSignalReachesChildren(t *testing.T) {
	// The background child keeps stdout open; only a group signal ends it.
	h := spawn(t, "sleep 30 & wait", nil, 0)

	_ = h.Terminate()
	waitExit(t, h, 5*time.Second)

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, h.Stdout())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected stdout to close once the group was signalled")
	}
}

func TestProcessSignalAfterExitIsNoop(t *testing.T) {
	h := spawn(t, "true", nil, 0)
	waitExit(t, h, 5*time.Second)

	if err := h.Terminate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestProcessSpawnErrors(t *testing.T) {
	rt := NewProcessRuntime(nil)

	if _, err := rt.Spawn(context.Background(), SpawnSpec{Cwd: t.TempDir()}); err == nil {
		t.Error("Expected error for empty command")
	}

	_, err := rt.Spawn(context.Background(), SpawnSpec{Command: "true", Cwd: "/definitely/not/here"})
	if err == nil {
		t.Error("Expected error for missing working directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.Spawn(ctx, SpawnSpec{Command: "true", Cwd: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProcessSpawnMissingProgram(t *testing.T) {
	rt := NewProcessRuntime(nil)
	dir := t.TempDir()

	for _, command := range []string{
		"definitely-not-a-binary-xyz --serve",
		"NODE_ENV=development definitely-not-a-binary-xyz",
		"./missing.sh",
	} {
		_, err := rt.Spawn(context.Background(), SpawnSpec{Command: command, Cwd: dir})
		if err == nil {
			t.Errorf("Expected %q to fail at spawn", command)
			continue
		}
		if command != "./missing.sh" && !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for %q, got %v", command, err)
		}
	}
}

func TestProcessSpawnResolvesAgainstSession(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\necho served\n"
	if err := os.WriteFile(filepath.Join(bin, "devserve"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	rt := NewProcessRuntime(nil)
	tests := []struct {
		name    string
		command string
		env     map[string]string
	}{
		{"relative to cwd", "./run.sh", nil},
		{"session PATH", "devserve --port $PORT", map[string]string{"PATH": bin + ":/usr/bin:/bin"}},
		{"relative PATH entry", "devserve", map[string]string{"PATH": "bin:/usr/bin:/bin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := rt.Spawn(context.Background(), SpawnSpec{Command: tt.command, Cwd: dir, Env: tt.env, Port: 3001})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			out, _ := io.ReadAll(h.Stdout())
			h.Stderr().Close()
			if strings.TrimSpace(string(out)) != "served" {
				t.Errorf("Expected served, got %q", out)
			}
			if status := waitExit(t, h, 5*time.Second); !status.Success() {
				t.Errorf("Expected success, got %s", status)
			}
		})
	}
}
