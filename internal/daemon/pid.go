package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Acquire when a live daemon holds the
// pid file.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDFile enforces a single daemon per shipyard home.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile for path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire records the current pid. A file left by a dead process is
// replaced; one held by a live process yields ErrAlreadyRunning.
func (p *PIDFile) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(p.path)
				return fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create pid file: %w", err)
		}

		if pid, running := Running(p.path); running {
			return fmt.Errorf("%w with PID %d", ErrAlreadyRunning, pid)
		}
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return fmt.Errorf("%w: pid file %s keeps reappearing", ErrAlreadyRunning, p.path)
}

// Release removes the pid file if it still names this process.
func (p *PIDFile) Release() error {
	pid, err := ReadPID(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Running reports the pid recorded at path and whether that process is
// alive.
func Running(path string) (int, bool) {
	pid, err := ReadPID(path)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, IsProcessRunning(pid)
}

// IsProcessRunning checks for a live process with signal 0.
func IsProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ReadPID parses the pid stored at path. A missing file yields an error
// satisfying os.IsNotExist.
func ReadPID(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(content))
	if s == "" {
		return 0, errors.New("pid file is empty")
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}
