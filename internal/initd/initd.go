// Package initd writes and removes System V control scripts. The generated
// script is the install-time integration point on fork-capable hosts: the
// init system (or an operator) invokes it with start/stop/restart and it
// re-invokes the managed executable with the matching lifecycle verb.
package initd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Script locates the control script for a single named service, stored as
// <dir>/<name>. The conventional dir is /etc/init.d.
type Script struct {
	dir  string
	name string
}

// New returns a Script for the given service name under dir.
func New(dir, name string) *Script {
	return &Script{dir: dir, name: name}
}

// Path returns the script's filesystem path.
func (s *Script) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Generate renders the control script text for a service run by execPath with
// the given fixed arguments. The script dispatches start, stop and restart;
// restart is stop followed by start; anything else prints usage and exits 1.
func Generate(name, description, execPath string, args []string) string {
	description = strings.ReplaceAll(description, "\n", " ")
	return fmt.Sprintf(`#!/bin/sh
# %s - %s
# Generated control script; regenerated in full on every install. Do not edit.

DAEMON=%q
DAEMON_ARGS=%q

case "$1" in
    start)
        "$DAEMON" $DAEMON_ARGS start
        ;;
    stop)
        "$DAEMON" $DAEMON_ARGS stop
        ;;
    restart)
        "$DAEMON" $DAEMON_ARGS stop
        "$DAEMON" $DAEMON_ARGS start
        ;;
    *)
        echo "Usage: $0 {start|stop|restart}"
        exit 1
        ;;
esac

exit 0
`, name, description, execPath, strings.Join(args, " "))
}

// Install writes the script from scratch, creating dir if needed, and marks
// it executable. An existing script is replaced wholesale so the content
// always reflects the current executable path.
func (s *Script) Install(description, execPath string, args []string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating script directory: %w", err)
	}
	content := Generate(s.name, description, execPath, args)
	if err := os.WriteFile(s.Path(), []byte(content), 0755); err != nil {
		return fmt.Errorf("writing control script: %w", err)
	}
	// WriteFile only applies the mode on create; an overwritten script must
	// end up executable too.
	if err := os.Chmod(s.Path(), 0755); err != nil {
		return fmt.Errorf("marking control script executable: %w", err)
	}
	return nil
}

// Remove deletes the script. A missing script is success.
func (s *Script) Remove() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing control script: %w", err)
	}
	return nil
}

// Exists reports whether the script is present. Script presence is what the
// lifecycle layer treats as "installed".
func (s *Script) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}
