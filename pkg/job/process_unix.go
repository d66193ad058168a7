//go:build unix

package job

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// processProber probes the OS process table with a null signal.
type processProber struct{}

// Alive reports whether the process with the given pid exists. On Unix,
// FindProcess always succeeds, so existence is checked by sending signal 0.
func (processProber) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Detach starts argv as a detached background process in its own session,
// with no inherited stdio, and returns its pid. The child keeps running
// after the caller exits.
func Detach(name string, argv ...string) (int, error) {
	cmd := exec.Command(name, argv...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	// The caller never waits on the child, release it outright.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release %s: %w", name, err)
	}
	return pid, nil
}
