//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning checks if the PID file exists and the process is alive.
// On Windows, uses os.FindProcess + a zero signal equivalent.
func (p *PIDFile) IsRunning() (Instance, bool) {
	inst, err := p.Read()
	if err != nil {
		return Instance{}, false
	}
	pid := inst.PID
	proc, err := os.FindProcess(pid)
	if err != nil {
		return inst, false
	}
	// On Windows, FindProcess always succeeds; test with Signal(0) equivalent.
	err = proc.Signal(syscall.Signal(0))
	return inst, err == nil
}

// Signal sends the given signal to the process in the PID file.
// On Windows, only SIGKILL (os.Kill) is reliably supported.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	inst, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid := inst.PID
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}
