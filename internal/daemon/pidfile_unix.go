//go:build !windows

package daemon

import (
	"errors"
	"fmt"
	"syscall"
)

// IsRunning checks if the PID file exists and the process is alive.
func (p *PIDFile) IsRunning() (Instance, bool) {
	inst, err := p.Read()
	if err != nil {
		return Instance{}, false
	}
	pid := inst.PID
	// Signal 0 tests if the process exists without sending a signal.
	// EPERM means it exists but belongs to another user.
	err = syscall.Kill(pid, 0)
	return inst, err == nil || errors.Is(err, syscall.EPERM)
}

// Signal sends the given signal to the process in the PID file.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	inst, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid := inst.PID
	return syscall.Kill(pid, sig)
}
