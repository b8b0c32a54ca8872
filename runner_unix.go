//go:build !windows
// +build !windows

package svckit

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"svckit/internal/daemonize"
	"svckit/internal/initd"
	"svckit/internal/logger"
	"svckit/internal/pidfile"
	"svckit/internal/terminate"
)

// Pipeline seams so the start flow is exercisable without re-executing the
// test binary.
var (
	detachPipeline = daemonize.Detach
	respawnSelf    = daemonize.Respawn
)

// unixRunner is the fork-host strategy: control script registration,
// self-daemonization, PID-record liveness and signal-based termination.
type unixRunner struct {
	c      *Controller
	script *initd.Script
	store  LivenessStore
	term   *terminate.Terminator
	clk    clock.Clock
}

func newRunner(c *Controller) runner {
	store := c.cfg.Store
	if store == nil {
		store = pidfile.New(c.cfg.PIDDir, c.desc.Name)
	}
	return &unixRunner{
		c:      c,
		script: initd.New(c.cfg.ScriptDir, c.desc.Name),
		store:  store,
		term:   terminate.New(c.cfg.Termination),
		clk:    clock.New(),
	}
}

func (r *unixRunner) installed() bool {
	return r.script.Exists()
}

func (r *unixRunner) running() bool {
	return r.store.Exists()
}

func (r *unixRunner) checkPrivilege() error {
	if r.c.cfg.DisablePrivilegeCheck {
		return nil
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("euid %d: %w", os.Geteuid(), ErrPermissionDenied)
	}
	return nil
}

func (r *unixRunner) install() error {
	if err := r.checkPrivilege(); err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	if err := r.script.Install(r.c.desc.Description, exe, r.c.cfg.Args); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%v: %w", err, ErrPermissionDenied)
		}
		return err
	}
	return nil
}

func (r *unixRunner) uninstall() error {
	if err := r.checkPrivilege(); err != nil {
		return err
	}
	if err := r.script.Remove(); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%v: %w", err, ErrPermissionDenied)
		}
		return err
	}
	return nil
}

func (r *unixRunner) start() error {
	stage, err := detachPipeline()
	switch {
	case err != nil && stage == daemonize.StageLauncher:
		return fmt.Errorf("%w: %v", ErrDetachFailed, err)
	case err != nil:
		// Already detached from the terminal; the failure can only be
		// reported through the state directory.
		writeStartupError(r.c.cfg.StateDir, r.c.desc.Name, err)
		os.Exit(1)
		return err // unreachable
	case stage == daemonize.StageLauncher:
		// Pipeline is away; the detached process finishes the start.
		return nil
	}
	return r.runDaemon()
}

// runDaemon is the life of the final detached process: persist the PID,
// hand the callback its handle, supervise until a signal or a spontaneous
// return, then clean up.
func (r *unixRunner) runDaemon() error {
	log := logger.WithComponent("service")

	if err := r.store.Write(os.Getpid()); err != nil {
		writeStartupError(r.c.cfg.StateDir, r.c.desc.Name, err)
		return err
	}
	// Exit cleanup runs on every path out of this function; it is what
	// distinguishes a crash from a requested stop.
	defer r.exitCleanup(log)

	h := r.c.newRunHandle()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	fire(r.c.desc.Hooks.OnStarted)
	done := make(chan error, 1)
	go func() { done <- r.c.desc.Callback(h) }()
	log.Info().Str("name", r.c.desc.Name).Int("pid", os.Getpid()).Msg("service started")

	var callbackErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("stop signal received")
		h.requestStop()
		select {
		case callbackErr = <-done:
		case s = <-sig:
			log.Warn().Str("signal", s.String()).Msg("second signal, exiting immediately")
			r.exitCleanup(log)
			os.Exit(1)
		}
	case callbackErr = <-done:
	}

	if callbackErr != nil {
		log.Error().Err(callbackErr).Msg("callback returned error")
	}
	log.Info().Str("name", r.c.desc.Name).Msg("service exiting")
	return callbackErr
}

// exitCleanup inspects the liveness record as the daemon leaves. A stop
// request deletes the record before signaling, so a record still present
// here means the exit was spontaneous — clean it up and, for AutoStart
// services, relaunch.
func (r *unixRunner) exitCleanup(log zerolog.Logger) {
	if !r.store.Exists() {
		return
	}
	if err := r.store.Remove(); err != nil {
		log.Error().Err(err).Msg("removing liveness record at exit")
	}
	if r.c.desc.AutoStart {
		log.Warn().Str("name", r.c.desc.Name).Msg("service exited without a stop request, restarting")
		r.clk.Sleep(r.c.cfg.RestartDelay)
		if err := respawnSelf(); err != nil {
			log.Error().Err(err).Msg("restart failed")
		}
	}
}

func (r *unixRunner) stop() error {
	log := logger.WithComponent("controller")

	pid, err := r.store.Read()
	if err != nil {
		if errors.Is(err, pidfile.ErrCorruptPID) {
			// The record is useless; drop it so the service is startable
			// again, but report the corruption.
			r.store.Remove()
			return fmt.Errorf("discarding unreadable liveness record: %w", err)
		}
		return fmt.Errorf("reading liveness record: %w", err)
	}

	// Delete before signaling: the record's absence is what tells the
	// exiting daemon this stop was requested.
	if err := r.store.Remove(); err != nil {
		return err
	}

	if pidfile.Stale(pid) {
		log.Warn().Int("pid", pid).Msg("liveness record was stale, process already gone")
		return nil
	}
	return r.term.Terminate(pid)
}

func (r *unixRunner) run() error {
	return r.c.foreground()
}
