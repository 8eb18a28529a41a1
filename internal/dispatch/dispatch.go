// Package dispatch provides the run-to-completion execution model of the
// client core: one owning goroutine mutates view state, network calls run
// off that goroutine and their completions are handed back to it.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"feedsync/internal/observability"
)

// ErrStopped is returned when work is posted to a loop that is not running.
var ErrStopped = errors.New("dispatch loop stopped")

// Dispatcher runs network calls asynchronously and delivers their outcome on
// the owning goroutine.
type Dispatcher interface {
	// Dispatch runs call off the owning goroutine and then invokes done with
	// its error on the owning goroutine. It never blocks on call.
	Dispatch(ctx context.Context, call func(ctx context.Context) error, done func(err error))
}

// Loop is a single-goroutine executor. Every posted task runs to completion
// before the next one starts.
type Loop struct {
	tasks    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
}

// NewLoop returns a loop whose queue holds up to buffer pending tasks.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks:   make(chan func(), buffer),
		stopped: make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			task()
		}
	}
}

// Post enqueues fn to run on the loop.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	select {
	case <-l.stopped:
		return ErrStopped
	case l.tasks <- fn:
		return nil
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch implements Dispatcher.
func (l *Loop) Dispatch(ctx context.Context, call func(ctx context.Context) error, done func(err error)) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		err := call(ctx)
		if postErr := l.Post(func() { done(err) }); postErr != nil {
			observability.LogAsyncOperationError(ctx, "dispatch.complete", postErr, nil)
		}
	}()
}

// Wait blocks until every dispatched call has handed its completion to the
// loop queue. Completions still need the loop to run.
func (l *Loop) Wait() {
	l.inflight.Wait()
}
