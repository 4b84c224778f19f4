//go:build !unix

package backend

import (
	"errors"
	"os"
	"os/exec"
)

var errNoProcess = os.ErrProcessDone

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup kills the process itself; there is no group signalling here
func signalGroup(pid int, kill bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return errNoProcess
	}
	if err := p.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return errNoProcess
		}
		return err
	}
	return nil
}

func decodeState(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	return state.ExitCode(), ""
}
