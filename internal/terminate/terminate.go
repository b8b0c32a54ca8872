// Package terminate delivers a stop signal to a process and confirms, within
// a bounded retry budget, that the process actually left the process table.
// Confirmation is mandatory: an unconfirmed exit is reported as a failure,
// never assumed.
package terminate

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/process"
)

// Default policy values.
const (
	DefaultMaxAttempts = 5
	DefaultInterval    = 200 * time.Millisecond
)

var (
	// ErrTimeout means the attempt budget was exhausted without the process
	// being confirmed gone.
	ErrTimeout = errors.New("process did not exit within the termination budget")

	// ErrSignalDelivery means the signal could not be delivered for a reason
	// other than the process being gone (typically permissions).
	ErrSignalDelivery = errors.New("stop signal could not be delivered")
)

// Policy configures how termination is attempted. Zero fields fall back to
// the defaults (SIGTERM, 5 attempts, 200ms apart).
type Policy struct {
	Signal      os.Signal
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		Signal:      syscall.SIGTERM,
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
	}
}

// Terminator applies a Policy to target processes.
type Terminator struct {
	policy Policy
	clk    clock.Clock
}

// New returns a Terminator for the given policy, filling zero fields from
// DefaultPolicy.
func New(p Policy) *Terminator {
	def := DefaultPolicy()
	if p.Signal == nil {
		p.Signal = def.Signal
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	return &Terminator{policy: p, clk: clock.New()}
}

// Terminate signals pid and polls until the process is confirmed gone.
// A target that is already gone, before the first signal or at any point
// after, is success. Exhausting the budget returns ErrTimeout. A delivery
// failure other than process-gone returns ErrSignalDelivery.
func (t *Terminator) Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		// FindProcess only fails on hosts where lookup itself proves the
		// process is gone.
		return nil
	}

	for attempt := 1; attempt <= t.policy.MaxAttempts; attempt++ {
		err := proc.Signal(t.policy.Signal)
		if isGoneErr(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: signal %v to pid %d: %v", ErrSignalDelivery, t.policy.Signal, pid, err)
		}

		t.clk.Sleep(t.policy.Interval)

		if gone(pid) {
			return nil
		}
	}
	return fmt.Errorf("%w: pid %d still alive after %d attempts", ErrTimeout, pid, t.policy.MaxAttempts)
}

func isGoneErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

// gone reports whether pid has left the process table. Errors consulting the
// table count as "still there" so termination never claims an unconfirmed
// success.
func gone(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return !alive
}
