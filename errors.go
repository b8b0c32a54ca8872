package svckit

import (
	"errors"

	"svckit/internal/pidfile"
	"svckit/internal/terminate"
)

// Lifecycle operations fail with errors from this closed set; compare with
// errors.Is. Lower layers wrap them with context.
var (
	// ErrAlreadyInstalled: install requested but the service is registered.
	ErrAlreadyInstalled = errors.New("service is already installed")

	// ErrNotInstalled: the operation needs a registered service.
	ErrNotInstalled = errors.New("service is not installed")

	// ErrAlreadyRunning: start requested while a liveness record exists.
	ErrAlreadyRunning = errors.New("service is already running")

	// ErrNotRunning: stop requested without a liveness record.
	ErrNotRunning = errors.New("service is not running")

	// ErrPermissionDenied: the operation requires superuser privileges.
	ErrPermissionDenied = errors.New("operation requires superuser privileges")

	// ErrDetachFailed: the detached service process could not be spawned.
	ErrDetachFailed = errors.New("could not detach service process")
)

// Re-exported component sentinels so callers need not reach into internal
// packages.
var (
	// ErrCorruptPIDRecord: the liveness record exists but does not parse.
	ErrCorruptPIDRecord = pidfile.ErrCorruptPID

	// ErrStopTimeout: the process did not confirm exit within the
	// termination policy's budget.
	ErrStopTimeout = terminate.ErrTimeout

	// ErrSignalDelivery: the stop signal could not be delivered.
	ErrSignalDelivery = terminate.ErrSignalDelivery
)
