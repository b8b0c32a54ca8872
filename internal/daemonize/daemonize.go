//go:build !windows
// +build !windows

// Package daemonize detaches the current program from its terminal and
// session by re-executing itself in stages. The classic double-fork sequence
// is reproduced with two spawns: the first runs in a fresh session (the child
// becomes session leader with no controlling terminal), the second leaves
// session leadership behind so the final process can never reacquire one.
// Each stage runs with umask 0, working directory /, and stdio on /dev/null.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// stageEnv carries the pipeline position across the re-execs.
const stageEnv = "SVCKIT_DAEMON_STAGE"

// Stage identifies where in the detach pipeline the current process sits.
type Stage int

const (
	// StageLauncher is the original foreground process.
	StageLauncher Stage = iota
	// StageLeader is the intermediate session leader; it exists only to
	// spawn the final stage and exit.
	StageLeader
	// StageDaemon is the final, fully detached process.
	StageDaemon
)

func currentStage() Stage {
	switch os.Getenv(stageEnv) {
	case "1":
		return StageLeader
	case "2":
		return StageDaemon
	default:
		return StageLauncher
	}
}

// Detach advances the detach pipeline from wherever the current process sits.
//
// In the launcher it spawns the next stage and returns (StageLauncher, nil);
// the caller should report success and exit normally — the pipeline continues
// detached. In the intermediate leader it spawns the final stage and exits
// the process without returning; it returns (StageLeader, err) only when that
// spawn fails. In the final process it returns (StageDaemon, nil) and the
// caller now runs fully detached and may persist its PID.
func Detach() (Stage, error) {
	switch stage := currentStage(); stage {
	case StageLauncher:
		if err := respawnStage(1, true); err != nil {
			return stage, fmt.Errorf("spawning detached process: %w", err)
		}
		return stage, nil

	case StageLeader:
		unix.Umask(0)
		if err := respawnStage(2, false); err != nil {
			return stage, fmt.Errorf("leaving session leadership: %w", err)
		}
		os.Exit(0)
		return stage, nil // unreachable

	default:
		unix.Umask(0)
		// A crash-restart re-exec must start the pipeline from scratch.
		os.Unsetenv(stageEnv)
		return StageDaemon, nil
	}
}

// respawnStage re-executes the current binary with the same arguments, marked
// for the given pipeline stage. newSession puts the child in its own session;
// the second hop deliberately does not, so the final process is not a session
// leader.
func respawnStage(stage int, newSession bool) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Dir = "/"
	cmd.Env = append(os.Environ(), stageEnv+"="+strconv.Itoa(stage))
	// Stdin, Stdout and Stderr left nil: exec attaches /dev/null.
	if newSession {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Respawn relaunches the current binary with its original arguments in a
// fresh session, detached from the calling process. Used by the crash
// restart path of an exiting daemon.
func Respawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("respawning %s: %w", exe, err)
	}
	return cmd.Process.Release()
}
