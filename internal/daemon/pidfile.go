// Package daemon tracks the background server through a small state file
// next to the database.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live server owns the file.
var ErrAlreadyRunning = errors.New("server already running")

// Instance describes a running server.
type Instance struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
}

// PIDFile manages the server state file.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process as the server listening on addr.
func (p *PIDFile) Write(addr string) error {
	return p.WriteInstance(Instance{PID: os.Getpid(), Addr: addr, StartedAt: time.Now().UTC()})
}

// WriteInstance writes inst to the file, creating the parent directory.
func (p *PIDFile) WriteInstance(inst Instance) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// Read reads the recorded instance.
func (p *PIDFile) Read() (Instance, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Instance{}, err
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil || inst.PID <= 0 {
		if err == nil {
			err = fmt.Errorf("pid %d", inst.PID)
		}
		return Instance{}, fmt.Errorf("invalid PID file content: %w", err)
	}
	return inst, nil
}

// Acquire records this process as the server, unless another live process
// already holds the file. A stale file left by a crashed server is replaced.
func (p *PIDFile) Acquire(addr string) error {
	if inst, running := p.IsRunning(); running && inst.PID != os.Getpid() {
		return fmt.Errorf("%w (PID %d, %s)", ErrAlreadyRunning, inst.PID, inst.Addr)
	}
	return p.Write(addr)
}

// Release removes the file if it still belongs to this process.
func (p *PIDFile) Release() error {
	inst, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if inst.PID != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
