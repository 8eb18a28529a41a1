package dispatch

import "context"

// Manual is a Dispatcher that holds every call until the caller resolves it.
// It runs everything on the caller's goroutine, which makes response order an
// explicit test input.
type Manual struct {
	pending []*pendingCall
}

type pendingCall struct {
	ctx  context.Context
	call func(ctx context.Context) error
	done func(err error)
}

// NewManual returns an empty manual dispatcher.
func NewManual() *Manual {
	return &Manual{}
}

// Dispatch implements Dispatcher.
func (m *Manual) Dispatch(ctx context.Context, call func(ctx context.Context) error, done func(err error)) {
	m.pending = append(m.pending, &pendingCall{ctx: ctx, call: call, done: done})
}

// Pending returns the number of unresolved calls.
func (m *Manual) Pending() int {
	return len(m.pending)
}

// Resolve runs the i-th pending call (in dispatch order) and its completion.
func (m *Manual) Resolve(i int) {
	p := m.pending[i]
	m.pending = append(m.pending[:i], m.pending[i+1:]...)
	p.done(p.call(p.ctx))
}

// ResolveLast resolves the most recently dispatched call.
func (m *Manual) ResolveLast() {
	m.Resolve(len(m.pending) - 1)
}

// Flush resolves calls in dispatch order until none remain, including calls
// dispatched by completions.
func (m *Manual) Flush() {
	for len(m.pending) > 0 {
		m.Resolve(0)
	}
}
