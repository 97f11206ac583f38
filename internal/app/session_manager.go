package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/pkg/capture"
)

// ErrSessionActive is returned by [SessionManager.Start] while a previous
// session has not reached a terminal status.
var ErrSessionActive = errors.New("app: a session is already active")

// ErrNoSession is returned when an operation needs a session and none has
// been started.
var ErrNoSession = errors.New("app: no session")

// SessionInfo holds metadata about the current session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager enforces that at most one assist session runs per
// process. A finished session may be replaced by a new one. All exported
// methods are safe for concurrent use.
type SessionManager struct {
	cfg         assist.Config
	deps        assist.Deps
	newPipeline func() (*capture.Pipeline, error)
	now         func() time.Time

	mu       sync.Mutex
	current  *assist.Session
	info     SessionInfo
	scanning bool
	seq      uint64
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Session is the template for every session. ID is generated per start.
	Session assist.Config

	// Deps are shared by every session. Capture is ignored; each session
	// gets a fresh pipeline from NewPipeline since pipelines are single-use.
	Deps assist.Deps

	// NewPipeline builds the capture pipeline for one session.
	NewPipeline func() (*capture.Pipeline, error)
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		cfg:         cfg.Session,
		deps:        cfg.Deps,
		newPipeline: cfg.NewPipeline,
		now:         time.Now,
		scanning:    cfg.Session.Scan.Enabled,
	}
}

// sessionID names a session by its start time and a per-process sequence
// number, so restarts within the same second stay distinct.
func sessionID(startedAt time.Time, seq uint64) string {
	return fmt.Sprintf("session-%s-%d", startedAt.UTC().Format("20060102T150405Z"), seq)
}

// Start creates and starts a new session. It returns [ErrSessionActive] if
// the previous one is still running. On a start failure the session is kept
// so its terminal status stays observable.
func (sm *SessionManager) Start(ctx context.Context) (*assist.Session, error) {
	sm.mu.Lock()
	if sm.current != nil && !sm.current.Status().Terminal() {
		id := sm.current.ID()
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, id)
	}

	pipe, err := sm.newPipeline()
	if err != nil {
		sm.mu.Unlock()
		return nil, fmt.Errorf("app: build capture pipeline: %w", err)
	}

	now := sm.now().UTC()
	cfg := sm.cfg
	sm.seq++
	cfg.ID = sessionID(now, sm.seq)
	cfg.Scan.Enabled = sm.scanning
	deps := sm.deps
	deps.Capture = pipe

	sess, err := assist.New(cfg, deps)
	if err != nil {
		sm.mu.Unlock()
		_ = pipe.Close()
		return nil, err
	}
	sm.current = sess
	sm.info = SessionInfo{SessionID: cfg.ID, StartedAt: now}
	sm.mu.Unlock()

	// Start announces and blocks on the dial, so it runs outside the lock.
	slog.Info("starting session", "session_id", cfg.ID, "scan", cfg.Scan.Enabled)
	if err := sess.Start(ctx); err != nil {
		return sess, err
	}
	return sess, nil
}

// Stop closes the current session. It returns [ErrNoSession] if none was
// started. Stopping a finished session is a no-op.
func (sm *SessionManager) Stop() error {
	sess := sm.Current()
	if sess == nil {
		return ErrNoSession
	}
	return sess.Close()
}

// Current returns the most recent session, or nil.
func (sm *SessionManager) Current() *assist.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// IsActive reports whether the current session is Active.
func (sm *SessionManager) IsActive() bool {
	return sm.Status() == assist.StatusActive
}

// Status returns the current session's status, or Idle without one.
func (sm *SessionManager) Status() assist.Status {
	if sess := sm.Current(); sess != nil {
		return sess.Status()
	}
	return assist.StatusIdle
}

// Info returns metadata about the current session.
// Returns zero value if no session was started.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// SetScanning toggles autonomous scanning on the current session and for
// sessions started later.
func (sm *SessionManager) SetScanning(on bool) {
	sm.mu.Lock()
	sm.scanning = on
	sess := sm.current
	sm.mu.Unlock()

	// The scan loop takes session locks from its hooks; never call it while
	// holding sm.mu.
	if sess != nil {
		sess.SetScanning(on)
	}
}

// Scanning reports whether autonomous scanning is requested.
func (sm *SessionManager) Scanning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.scanning
}

// Query runs a manual one-shot query on the current session.
func (sm *SessionManager) Query(ctx context.Context, kind assist.Kind) (string, error) {
	sess := sm.Current()
	if sess == nil {
		return "", ErrNoSession
	}
	return sess.Query(ctx, kind)
}

// ReadyCheck is a readiness probe: it fails unless a session is Active.
// The error carries the status label users hear.
func (sm *SessionManager) ReadyCheck(context.Context) error {
	st := sm.Status()
	if st != assist.StatusActive {
		return fmt.Errorf("session %s", st.Label())
	}
	return nil
}
