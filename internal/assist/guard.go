package assist

import "sync"

// TaskGuard admits at most one one-shot query at a time. Manual queries and
// the autonomous scan loop share one guard.
type TaskGuard struct {
	mu    sync.Mutex
	owner string
}

// TryAcquire claims the guard for trigger. It returns a release func and
// true on success, or nil and false while another task holds it. The
// release func is idempotent.
func (g *TaskGuard) TryAcquire(trigger string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owner != "" {
		return nil, false
	}
	g.owner = trigger
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.owner = ""
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether a task holds the guard.
func (g *TaskGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner != ""
}

// Owner returns the trigger of the task holding the guard, or "".
func (g *TaskGuard) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}
