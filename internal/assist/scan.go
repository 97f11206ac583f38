package assist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/visionally/internal/observe"
)

// Scan loop defaults.
const (
	DefaultScanWarmup = 15 * time.Second
	DefaultScanPeriod = 10 * time.Second
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// call stopped the timer.
	Stop() bool
}

// Clock schedules callbacks. The default uses [time.AfterFunc].
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ScanConfig tunes a [ScanLoop].
type ScanConfig struct {
	// Enabled turns the loop on when it starts.
	Enabled bool

	// Warmup delays the first tick after the session becomes Active.
	// Default 15s.
	Warmup time.Duration

	// Period is the steady-state interval between scans. Default 10s.
	Period time.Duration

	// Retry is the short backoff used while the assistant is busy or
	// speaking. Default Period/4.
	Retry time.Duration
}

func (c *ScanConfig) applyDefaults() {
	if c.Period <= 0 {
		c.Period = DefaultScanPeriod
	}
	if c.Warmup <= 0 {
		c.Warmup = DefaultScanWarmup
	}
	if c.Retry <= 0 {
		c.Retry = c.Period / 4
	}
}

// ScanHooks connect a [ScanLoop] to the session it scans for.
type ScanHooks struct {
	// Active reports whether the session is Active. The loop stops
	// rescheduling once it returns false.
	Active func() bool

	// Speaking reports whether playback is in progress.
	Speaking func() bool

	// Scan runs one one-shot analysis of the current frame.
	Scan func(ctx context.Context) (string, error)

	// Deliver receives a non-empty result while the loop is still on.
	Deliver func(text string)
}

// ScanOption configures a [ScanLoop].
type ScanOption func(*ScanLoop)

// WithClock replaces the timer source.
func WithClock(c Clock) ScanOption {
	return func(l *ScanLoop) { l.clock = c }
}

// WithScanMetrics records tick outcomes on m instead of
// [observe.DefaultMetrics].
func WithScanMetrics(m *observe.Metrics) ScanOption {
	return func(l *ScanLoop) { l.metrics = m }
}

// ScanLoop is a self-rescheduling autonomous scanner. Each tick schedules
// the next one, so ticks never overlap and a slow scan never shortens the
// interval. Busy or speaking ticks back off to [ScanConfig.Retry] and try
// again.
type ScanLoop struct {
	cfg     ScanConfig
	guard   *TaskGuard
	hooks   ScanHooks
	clock   Clock
	metrics *observe.Metrics

	mu      sync.Mutex
	ctx     context.Context
	enabled bool
	started bool
	stopped bool
	timer   Timer
	gen     uint64
}

// NewScanLoop creates a stopped loop sharing guard with manual queries.
func NewScanLoop(cfg ScanConfig, guard *TaskGuard, hooks ScanHooks, opts ...ScanOption) *ScanLoop {
	cfg.applyDefaults()
	l := &ScanLoop{
		cfg:   cfg,
		guard: guard,
		hooks: hooks,
		clock: systemClock{},
		ctx:   context.Background(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Config returns the effective configuration.
func (l *ScanLoop) Config() ScanConfig { return l.cfg }

// Start arms the warm-up tick if the loop is enabled. Scans run with a
// context that keeps ctx's values but not its cancellation. Only the first
// call has an effect.
func (l *ScanLoop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	l.ctx = context.WithoutCancel(ctx)
	l.enabled = l.cfg.Enabled
	if l.enabled {
		l.scheduleLocked(l.cfg.Warmup)
	}
}

// SetEnabled toggles the loop. Turning it off cancels the pending tick; an
// in-flight scan finishes but its result is discarded. Turning it on after
// Start schedules a tick one period from now.
func (l *ScanLoop) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.enabled == on {
		return
	}
	l.enabled = on
	if !on {
		l.cancelLocked()
		slog.Debug("assist: autonomous scan off")
		return
	}
	if l.started {
		l.scheduleLocked(l.cfg.Period)
	}
	slog.Debug("assist: autonomous scan on")
}

// Enabled reports whether the loop is on.
func (l *ScanLoop) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Pending reports whether a tick is scheduled.
func (l *ScanLoop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timer != nil
}

// Stop cancels the pending tick and disables the loop for good.
// Idempotent.
func (l *ScanLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.enabled = false
	l.cancelLocked()
}

func (l *ScanLoop) scheduleLocked(d time.Duration) {
	l.cancelLocked()
	gen := l.gen
	l.timer = l.clock.AfterFunc(d, func() { l.tick(gen) })
}

// cancelLocked stops the pending timer and invalidates any tick that
// already fired but has not yet taken the lock.
func (l *ScanLoop) cancelLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
}

func (l *ScanLoop) current(gen uint64) bool {
	return gen == l.gen && l.enabled && !l.stopped
}

func (l *ScanLoop) tick(gen uint64) {
	l.mu.Lock()
	if !l.current(gen) {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	ctx := l.ctx

	if !l.hooks.Active() {
		l.mu.Unlock()
		l.metrics.RecordScanTick(ctx, "inactive")
		return
	}
	if l.hooks.Speaking() {
		l.scheduleLocked(l.cfg.Retry)
		l.mu.Unlock()
		l.metrics.RecordScanTick(ctx, "speaking")
		return
	}
	release, ok := l.guard.TryAcquire("auto")
	if !ok {
		l.scheduleLocked(l.cfg.Retry)
		l.mu.Unlock()
		l.metrics.RecordScanTick(ctx, "busy")
		return
	}
	l.mu.Unlock()

	text, err := l.hooks.Scan(ctx)
	release()

	l.mu.Lock()
	keep := l.current(gen)
	if keep {
		l.scheduleLocked(l.cfg.Period)
	}
	l.mu.Unlock()

	switch {
	case err != nil:
		slog.Warn("assist: autonomous scan failed", "err", err)
		l.metrics.RecordScanTick(ctx, "failed")
	case !keep:
		l.metrics.RecordScanTick(ctx, "discarded")
	case text == "":
		l.metrics.RecordScanTick(ctx, "empty")
	default:
		l.hooks.Deliver(text)
		l.metrics.RecordScanTick(ctx, "scanned")
	}
}
