package svckit

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"svckit/internal/terminate"
)

// LivenessStore persists the running service's identity. The reference
// implementation is a PID file; anything that can durably store, read and
// delete one integer per service can substitute. Record presence is the
// oracle the lifecycle guards consult for "running".
type LivenessStore interface {
	Write(pid int) error
	Read() (int, error)
	Remove() error
	Exists() bool
}

// Config adjusts controller behavior. Zero-value fields fall back to
// DefaultConfig, except DisablePrivilegeCheck which is honored as given.
type Config struct {
	// ScriptDir receives the generated control script on POSIX hosts.
	ScriptDir string

	// PIDDir holds the default liveness records.
	PIDDir string

	// StateDir receives startup-error reports from processes that have
	// already lost their stdio. Defaults to PIDDir.
	StateDir string

	// Args are fixed arguments baked into the host registration (control
	// script or service-manager command line) ahead of the lifecycle verb.
	Args []string

	// Termination configures how stop delivers signals and confirms exit.
	Termination terminate.Policy

	// StopGrace bounds how long a service-manager host waits for the
	// callback after a stop request before abandoning the worker.
	StopGrace time.Duration

	// RestartDelay spaces a crash-triggered relaunch from the exit that
	// caused it.
	RestartDelay time.Duration

	// DisablePrivilegeCheck skips the superuser requirement on install and
	// uninstall, for user-mode layouts whose directories are writable.
	DisablePrivilegeCheck bool

	// Out receives the one-line operation announcements. Defaults to stdout.
	Out io.Writer

	// Store overrides the liveness store. Defaults to a PID file under
	// PIDDir.
	Store LivenessStore
}

// DefaultConfig returns the stock configuration: system init.d directory,
// per-user PID directory, SIGTERM termination in five 200ms-spaced attempts,
// 5s stop grace under a service manager, 1s crash-restart delay.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	pidDir := filepath.Join(home, ".svckit", "pids")
	return Config{
		ScriptDir:    "/etc/init.d",
		PIDDir:       pidDir,
		StateDir:     pidDir,
		Termination:  terminate.DefaultPolicy(),
		StopGrace:    5 * time.Second,
		RestartDelay: time.Second,
		Out:          os.Stdout,
	}
}

func normalizeConfig(cfg *Config) Config {
	def := DefaultConfig()
	if cfg == nil {
		return def
	}
	out := *cfg
	if out.ScriptDir == "" {
		out.ScriptDir = def.ScriptDir
	}
	if out.PIDDir == "" {
		out.PIDDir = def.PIDDir
	}
	if out.StateDir == "" {
		out.StateDir = out.PIDDir
	}
	if out.StopGrace <= 0 {
		out.StopGrace = def.StopGrace
	}
	if out.RestartDelay <= 0 {
		out.RestartDelay = def.RestartDelay
	}
	if out.Out == nil {
		out.Out = def.Out
	}
	// Termination zero fields are filled by the terminator itself.
	return out
}
