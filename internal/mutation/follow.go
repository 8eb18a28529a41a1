package mutation

import "sync"

// HintStore persists follow hints across restarts.
type HintStore interface {
	FollowHint(targetID string) (following, ok bool)
	SetFollowHint(targetID string, following bool)
}

// FollowState is the shared record of the viewer's follow edges, keyed by
// target user id. Every view renders follow state from here.
type FollowState struct {
	mu    sync.RWMutex
	edges map[string]bool
	hints HintStore
}

// NewFollowState returns an empty store. hints may be nil.
func NewFollowState(hints HintStore) *FollowState {
	return &FollowState{edges: make(map[string]bool), hints: hints}
}

// Get returns the follow state for target, falling back to the persisted
// hint. A hint only serves the first render until a fetch is observed.
func (f *FollowState) Get(targetID string) (following, known bool) {
	f.mu.RLock()
	following, known = f.edges[targetID]
	f.mu.RUnlock()
	if known || f.hints == nil {
		return following, known
	}
	return f.hints.FollowHint(targetID)
}

// Following reports whether the viewer follows target. Unknown targets are
// not followed.
func (f *FollowState) Following(targetID string) bool {
	following, _ := f.Get(targetID)
	return following
}

// Set records the follow state and mirrors it to the hint store.
func (f *FollowState) Set(targetID string, following bool) {
	f.mu.Lock()
	f.edges[targetID] = following
	f.mu.Unlock()
	if f.hints != nil {
		f.hints.SetFollowHint(targetID, following)
	}
}

// Observe records server-reported state for target, replacing whatever was
// known locally, hint included. It reports whether the rendered state
// changed.
func (f *FollowState) Observe(targetID string, following bool) bool {
	changed := f.Following(targetID) != following
	f.Set(targetID, following)
	return changed
}

// Clear forgets every edge.
func (f *FollowState) Clear() {
	f.mu.Lock()
	f.edges = make(map[string]bool)
	f.mu.Unlock()
}
