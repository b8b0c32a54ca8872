package svckit

import (
	"errors"
	"fmt"

	"svckit/internal/logger"
)

// Controller drives one service's lifecycle. Every operation re-derives its
// guards from persistent state at call time, so controllers in separate
// processes agree on what exists without sharing memory.
type Controller struct {
	desc   Descriptor
	cfg    Config
	handle *Handle
	run    runner
}

// New validates desc, fills configuration defaults (nil cfg means
// DefaultConfig) and binds the host strategy for the current platform.
func New(desc Descriptor, cfg *Config) (*Controller, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	c := &Controller{desc: desc, cfg: normalizeConfig(cfg)}
	c.run = newRunner(c)
	return c, nil
}

// Name returns the service name.
func (c *Controller) Name() string {
	return c.desc.Name
}

// IsInstalled reports whether the service is registered with the host.
func (c *Controller) IsInstalled() bool {
	return c.run.installed()
}

// IsRunning reports whether a liveness record exists for the service.
func (c *Controller) IsRunning() bool {
	return c.run.running()
}

// Status derives the service's lifecycle position from persistent state.
func (c *Controller) Status() (Status, error) {
	if !c.run.installed() {
		return StatusNotInstalled, nil
	}
	if c.run.running() {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Install registers the service with the host: a control script on POSIX
// hosts, a service-manager entry on Windows.
func (c *Controller) Install() error {
	log := logger.WithComponent("controller")
	if c.run.installed() {
		return fmt.Errorf("%s: %w", c.desc.Name, ErrAlreadyInstalled)
	}
	c.announce("Installing")
	if err := c.run.install(); err != nil {
		log.Error().Err(err).Str("name", c.desc.Name).Msg("install failed")
		return err
	}
	log.Info().Str("name", c.desc.Name).Msg("service installed")
	fire(c.desc.Hooks.OnInstalled)
	return nil
}

// Uninstall stops the service if it is running, then removes the host
// registration. A stop failure aborts the uninstall.
func (c *Controller) Uninstall() error {
	log := logger.WithComponent("controller")
	if !c.run.installed() {
		return fmt.Errorf("%s: %w", c.desc.Name, ErrNotInstalled)
	}
	if c.run.running() {
		if err := c.Stop(); err != nil {
			return fmt.Errorf("stopping before uninstall: %w", err)
		}
	}
	c.announce("Uninstalling")
	if err := c.run.uninstall(); err != nil {
		log.Error().Err(err).Str("name", c.desc.Name).Msg("uninstall failed")
		return err
	}
	log.Info().Str("name", c.desc.Name).Msg("service uninstalled")
	fire(c.desc.Hooks.OnUninstalled)
	return nil
}

// Start launches the service in the background. On POSIX hosts the calling
// process returns once the detached pipeline is away; the detached process
// carries the rest of the start (liveness record, hooks, callback). On
// Windows the service manager is asked to start the registered service. A
// failed start leaves no liveness record behind.
func (c *Controller) Start() error {
	if !c.run.installed() {
		return fmt.Errorf("%s: %w", c.desc.Name, ErrNotInstalled)
	}
	if c.run.running() {
		return fmt.Errorf("%s: %w", c.desc.Name, ErrAlreadyRunning)
	}
	c.announce("Starting")
	return c.run.start()
}

// Stop ends the running service. The liveness record is deleted before any
// signal is sent: the exiting daemon reads the record's absence as "this was
// a requested stop, not a crash".
func (c *Controller) Stop() error {
	log := logger.WithComponent("controller")
	if !c.run.running() {
		return fmt.Errorf("%s: %w", c.desc.Name, ErrNotRunning)
	}
	c.announce("Stopping")
	if err := c.run.stop(); err != nil {
		log.Error().Err(err).Str("name", c.desc.Name).Msg("stop failed")
		return err
	}
	log.Info().Str("name", c.desc.Name).Msg("service stopped")
	fire(c.desc.Hooks.OnStopped)
	return nil
}

// Restart stops the service if it is running, then starts it.
func (c *Controller) Restart() error {
	if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return c.Start()
}

// Run executes the callback in the current process. Under a service-manager
// host this enters the host's status-reporting loop; anywhere else it runs
// in the foreground with interrupt handling and no liveness record.
func (c *Controller) Run() error {
	return c.run.run()
}

func (c *Controller) announce(verb string) {
	fmt.Fprintf(c.cfg.Out, "* %s %s\n", verb, c.desc.Name)
}

func (c *Controller) newRunHandle() *Handle {
	h := newHandle()
	c.handle = h
	return h
}
