//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {
	// No Setsid on Windows; the process stays in the same console.
}

func pidAlive(pid int) bool {
	// No kill(pid, 0) equivalent without x/sys; assume valid pids are alive.
	return pid > 0
}

func stopProcess(proc *os.Process) error {
	// SIGTERM is not supported on Windows.
	return proc.Kill()
}
