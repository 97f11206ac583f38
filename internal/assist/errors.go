package assist

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by [Session.Query] while another one-shot query,
	// manual or autonomous, is in flight. The new query is not queued.
	ErrBusy = errors.New("assist: a scan is already in progress")

	// ErrNotActive is returned when an operation needs an Active session.
	ErrNotActive = errors.New("assist: session is not active")

	// ErrSessionReused is returned by [Session.Start] on a session that has
	// already been started or closed. Sessions are single-use.
	ErrSessionReused = errors.New("assist: session cannot be started twice")
)

// CaptureError reports that the capture source could not be opened or
// failed while streaming. It is fatal to the session.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("assist: capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// TransportError reports that the live stream could not be dialled or
// dropped. It is fatal to the session; there is no automatic reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("assist: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// QueryError reports a failed one-shot query. It never ends the session.
type QueryError struct {
	Kind    Kind
	Trigger string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("assist: %s %s query: %v", e.Trigger, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
