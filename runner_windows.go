//go:build windows
// +build windows

package svckit

import (
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"

	"svckit/internal/logger"
	"svckit/internal/terminate"
)

// windowsRunner is the host-managed strategy: the service control manager
// owns process creation and teardown, so registration, liveness and stop all
// go through it. There is no PID record on this host.
type windowsRunner struct {
	c   *Controller
	clk clock.Clock
}

func newRunner(c *Controller) runner {
	return &windowsRunner{c: c, clk: clock.New()}
}

func (r *windowsRunner) installed() bool {
	m, err := mgr.Connect()
	if err != nil {
		return false
	}
	defer m.Disconnect()
	s, err := m.OpenService(r.c.desc.Name)
	if err != nil {
		return false
	}
	s.Close()
	return true
}

func (r *windowsRunner) running() bool {
	m, err := mgr.Connect()
	if err != nil {
		return false
	}
	defer m.Disconnect()
	s, err := m.OpenService(r.c.desc.Name)
	if err != nil {
		return false
	}
	defer s.Close()
	st, err := s.Query()
	if err != nil {
		return false
	}
	return st.State == svc.Running || st.State == svc.StartPending
}

func (r *windowsRunner) install() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	cfg := mgr.Config{
		DisplayName: r.c.desc.Name,
		Description: r.c.desc.Description,
		StartType:   mgr.StartManual,
	}
	if r.c.desc.AutoStart {
		cfg.StartType = mgr.StartAutomatic
	}
	args := append(append([]string{}, r.c.cfg.Args...), "run")
	s, err := m.CreateService(r.c.desc.Name, exe, cfg, args...)
	if err != nil {
		return fmt.Errorf("registering service: %w", err)
	}
	defer s.Close()

	// Best effort: a registered event source makes startup errors visible
	// in the event viewer. An already-registered source is fine.
	_ = eventlog.InstallAsEventCreate(r.c.desc.Name, eventlog.Error|eventlog.Warning|eventlog.Info)
	return nil
}

func (r *windowsRunner) uninstall() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(r.c.desc.Name)
	if err != nil {
		return fmt.Errorf("opening service: %w", err)
	}
	defer s.Close()
	if err := s.Delete(); err != nil {
		return fmt.Errorf("deregistering service: %w", err)
	}
	_ = eventlog.Remove(r.c.desc.Name)
	return nil
}

func (r *windowsRunner) start() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(r.c.desc.Name)
	if err != nil {
		return fmt.Errorf("opening service: %w", err)
	}
	defer s.Close()
	if err := s.Start(); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	return nil
}

// stop asks the manager to stop the service, then polls its state on the
// termination policy's budget. An unconfirmed stop is a failure.
func (r *windowsRunner) stop() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(r.c.desc.Name)
	if err != nil {
		return fmt.Errorf("opening service: %w", err)
	}
	defer s.Close()

	st, err := s.Control(svc.Stop)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignalDelivery, err)
	}

	attempts := r.c.cfg.Termination.MaxAttempts
	if attempts <= 0 {
		attempts = terminate.DefaultMaxAttempts
	}
	interval := r.c.cfg.Termination.Interval
	if interval <= 0 {
		interval = terminate.DefaultInterval
	}

	for i := 0; i < attempts; i++ {
		if st.State == svc.Stopped {
			return nil
		}
		r.clk.Sleep(interval)
		st, err = s.Query()
		if err != nil {
			return fmt.Errorf("querying service state: %w", err)
		}
	}
	if st.State == svc.Stopped {
		return nil
	}
	return fmt.Errorf("%w: service state still %d", ErrStopTimeout, st.State)
}

func (r *windowsRunner) run() error {
	isSvc, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("detecting service host: %w", err)
	}
	if !isSvc {
		return r.c.foreground()
	}

	if err := svc.Run(r.c.desc.Name, &scmHandler{c: r.c}); err != nil {
		reportStartupError(r.c.desc.Name, err)
		writeStartupError(r.c.cfg.StateDir, r.c.desc.Name, err)
		return err
	}
	return nil
}

// scmHandler implements svc.Handler: it translates control-manager requests
// into handle signaling and status reports.
type scmHandler struct {
	c *Controller
}

func (hd *scmHandler) Execute(args []string, req <-chan svc.ChangeRequest, status chan<- svc.Status) (svcSpecificEC bool, exitCode uint32) {
	log := logger.WithComponent("windows-service")

	const acceptedCommands = svc.AcceptStop | svc.AcceptShutdown

	status <- svc.Status{State: svc.StartPending}

	h := hd.c.newRunHandle()
	fire(hd.c.desc.Hooks.OnStarted)
	done := make(chan error, 1)
	go func() { done <- hd.c.desc.Callback(h) }()

	status <- svc.Status{State: svc.Running, Accepts: acceptedCommands}
	log.Info().Str("name", hd.c.desc.Name).Msg("service running")

	for {
		select {
		case cr := <-req:
			switch cr.Cmd {
			case svc.Interrogate:
				status <- cr.CurrentStatus
				// Respond twice as per documentation
				time.Sleep(100 * time.Millisecond)
				status <- cr.CurrentStatus

			case svc.Stop, svc.Shutdown:
				log.Info().Msg("stop requested by service control manager")
				status <- svc.Status{State: svc.StopPending}
				h.requestStop()

				// The worker is cooperative, never joined by force: give it
				// the grace period, then report stopped regardless.
				select {
				case <-done:
				case <-time.After(hd.c.cfg.StopGrace):
					log.Warn().Dur("grace", hd.c.cfg.StopGrace).Msg("callback ignored stop request, abandoning worker")
				}

				fire(hd.c.desc.Hooks.OnStopped)
				status <- svc.Status{State: svc.Stopped}
				return false, 0

			default:
				log.Warn().Int("cmd", int(cr.Cmd)).Msg("unexpected service control command")
			}

		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("callback exited with error")
				fire(hd.c.desc.Hooks.OnStopped)
				status <- svc.Status{State: svc.Stopped}
				return true, 1
			}
			fire(hd.c.desc.Hooks.OnStopped)
			status <- svc.Status{State: svc.Stopped}
			return false, 0
		}
	}
}

// reportStartupError surfaces a startup failure in the Windows event log, so
// "net start" failures are explained even before logging is configured.
func reportStartupError(name string, err error) {
	_ = eventlog.InstallAsEventCreate(name, eventlog.Error|eventlog.Warning|eventlog.Info)

	elog, openErr := eventlog.Open(name)
	if openErr != nil {
		return
	}
	defer elog.Close()
	elog.Error(1, fmt.Sprintf("failed to start: %v", err))
}
