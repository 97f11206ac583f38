package assist

// Status is the lifecycle state of a [Session].
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusActive
	StatusClosing
	StatusClosed
	StatusFailed
)

// String returns the lower-case state name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Label returns the short status text shown to the user.
func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "Initializing..."
	case StatusConnecting:
		return "Connecting..."
	case StatusActive:
		return "Active"
	case StatusClosing, StatusClosed:
		return "Off"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is Closed or Failed.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}
