//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// detach puts the re-exec'd daemon in its own session so it outlives the
// parent's terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// pidAlive checks with kill(pid, 0): existence or permission, not health.
func pidAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func stopProcess(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
