// Package pidfile persists a service's process ID as its on-disk liveness
// record. Presence of the record is what the lifecycle layer treats as
// "running"; the record does not by itself prove the process is alive.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrCorruptPID indicates the record's contents do not parse to a positive
// integer process ID.
var ErrCorruptPID = errors.New("pid record is not a positive integer")

// Store manages the PID record for a single named service, stored as
// <dir>/<name>.pid containing the decimal PID and a trailing newline.
type Store struct {
	path string
}

// New returns a Store for the given service name under dir.
func New(dir, name string) *Store {
	return &Store{path: filepath.Join(dir, name+".pid")}
}

// Path returns the record's filesystem path.
func (s *Store) Path() string {
	return s.path
}

// Write creates or overwrites the record with pid, creating the parent
// directory if needed.
func (s *Store) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating pid directory: %w", err)
	}
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing pid record: %w", err)
	}
	return nil
}

// Read returns the recorded PID. Surrounding whitespace is tolerated; any
// record that does not parse to a positive integer returns ErrCorruptPID.
func (s *Store) Read() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorruptPID, raw)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrCorruptPID, pid)
	}
	return pid, nil
}

// Remove deletes the record. A missing record is success.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid record: %w", err)
	}
	return nil
}

// Exists reports whether a record is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Stale reports whether pid's process is gone from the process table. When
// the table cannot be consulted it errs on the side of "not stale".
func Stale(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return !alive
}
