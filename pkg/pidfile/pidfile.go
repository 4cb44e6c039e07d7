// Package pidfile guards against running more than one daemon instance.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile represents a PID file for daemon process management.
type PIDFile struct {
	path string
	pid  int
}

// New creates a PIDFile for the current process.
func New(path string) *PIDFile {
	return &PIDFile{
		path: path,
		pid:  os.Getpid(),
	}
}

// Create writes the PID file, refusing when another live instance holds it.
// A stale file left by a dead process is removed and replaced.
func (p *PIDFile) Create() error {
	if p.exists() {
		existingPID, err := p.readExistingPID()
		if err != nil {
			return fmt.Errorf("failed to read existing PID file: %w", err)
		}
		if processAlive(existingPID) {
			return fmt.Errorf("daemon already running with PID %d", existingPID)
		}
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", p.pid)), 0o644); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	return nil
}

// Remove deletes the PID file if it still belongs to this process.
func (p *PIDFile) Remove() error {
	if !p.exists() {
		return nil
	}

	existingPID, err := p.readExistingPID()
	if err != nil {
		return os.Remove(p.path)
	}
	if existingPID != p.pid {
		return fmt.Errorf("PID file contains different PID (%d vs %d), not removing", existingPID, p.pid)
	}
	return os.Remove(p.path)
}

// Path returns the path to the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// CheckRunning reports whether another live instance holds the PID file,
// and its PID.
func (p *PIDFile) CheckRunning() (bool, int, error) {
	if !p.exists() {
		return false, 0, nil
	}
	existingPID, err := p.readExistingPID()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	if processAlive(existingPID) {
		return true, existingPID, nil
	}
	return false, 0, nil
}

func (p *PIDFile) exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

func (p *PIDFile) readExistingPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}
	return pid, nil
}

// processAlive probes the PID with signal 0. EPERM still means the process
// exists, just owned by someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
