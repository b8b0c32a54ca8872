package svckit

import (
	"errors"
	"fmt"
)

// Callback is the unit of work the service runs. It must watch the handle
// and return promptly once a stop is requested; a non-nil error is logged
// and the exit is treated like any other spontaneous callback return.
type Callback func(h *Handle) error

// Hooks are optional notifications fired synchronously at lifecycle
// transitions. Nil fields are no-ops.
type Hooks struct {
	OnInstalled   func()
	OnUninstalled func()
	OnStarted     func()
	OnStopped     func()
}

func fire(f func()) {
	if f != nil {
		f()
	}
}

// Descriptor identifies a service and carries its unit of work. Name doubles
// as the control-script, liveness-record and service-manager identity, so it
// is restricted to characters safe in a filename.
type Descriptor struct {
	Name        string
	Description string

	// AutoStart marks the service for automatic starting: the host
	// registration uses it (SCM start type) and the POSIX crash detector
	// relaunches an AutoStart service that exits without a stop request.
	AutoStart bool

	Callback Callback
	Hooks    Hooks
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("service descriptor: name is required")
	}
	for _, r := range d.Name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("service descriptor: name %q contains %q; allowed are letters, digits, '-', '_' and '.'", d.Name, r)
		}
	}
	if d.Callback == nil {
		return errors.New("service descriptor: callback is required")
	}
	return nil
}
