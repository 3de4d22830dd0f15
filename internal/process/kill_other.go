//go:build !unix

package process

import (
	"errors"
	"os"
	"os/exec"
)

var terminateSignal = os.Kill

func setProcessGroup(*exec.Cmd) {}

func signalProcessGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitStatus(err *exec.ExitError) int {
	return err.ExitCode()
}
