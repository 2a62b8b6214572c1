package async

import (
	"context"
	"sync"
)

// RunFunc is the work a Runner executes.
type RunFunc func(ctx context.Context, tracker *Tracker) error

// Runner executes a RunFunc on a background goroutine so the caller can
// render progress and handle signals while it runs.
type Runner struct {
	tracker *Tracker
	fn      RunFunc

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

// NewRunner creates a runner for fn.
func NewRunner(fn RunFunc) *Runner {
	return &Runner{
		tracker: NewTracker(),
		fn:      fn,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Tracker returns the progress tracker passed to the RunFunc.
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// IsRunning reports whether the RunFunc is executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start runs the RunFunc in the background. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.running = true
	r.mu.Unlock()

	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if r.fn == nil {
		return
	}
	if err := r.fn(ctx, r.tracker); err != nil {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}
}

// Stop cancels the run and waits for it to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// Done is closed when the run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.doneCh
}

// Wait blocks until the run returns and reports its error.
func (r *Runner) Wait() error {
	<-r.doneCh
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
