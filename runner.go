package svckit

import (
	"os"
	"os/signal"
	"syscall"

	"svckit/internal/logger"
)

// runner is the host strategy bound once at construction: how this host
// registers the service and how it detaches, supervises and stops it.
type runner interface {
	install() error
	uninstall() error
	start() error
	stop() error
	run() error
	installed() bool
	running() bool
}

// foreground runs the callback in the current process, wiring interrupt
// signals to the handle. Shared by the POSIX run path and the Windows
// interactive fallback.
func (c *Controller) foreground() error {
	log := logger.WithComponent("service")
	h := c.newRunHandle()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	fire(c.desc.Hooks.OnStarted)
	done := make(chan error, 1)
	go func() { done <- c.desc.Callback(h) }()
	log.Info().Str("name", c.desc.Name).Msg("running in foreground")

	var err error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("interrupt received, stopping")
		h.requestStop()
		select {
		case err = <-done:
		case s = <-sig:
			log.Warn().Str("signal", s.String()).Msg("second interrupt, exiting immediately")
			os.Exit(1)
		}
	case err = <-done:
	}

	if err != nil {
		log.Error().Err(err).Msg("callback returned error")
	}
	fire(c.desc.Hooks.OnStopped)
	return err
}
