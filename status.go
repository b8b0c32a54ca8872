package svckit

// Status summarizes a service's lifecycle position as derived from
// persistent state at the moment of the call.
type Status int

const (
	// StatusNotInstalled: no host registration exists.
	StatusNotInstalled Status = iota
	// StatusStopped: registered but no liveness record.
	StatusStopped
	// StatusRunning: a liveness record exists.
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusNotInstalled:
		return "not installed"
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}
