// Package pagination implements the per-list infinite scroll state machine.
package pagination

// DefaultProximity is how close to the end of content, in scroll units, the
// viewport must be before the next page is requested.
const DefaultProximity = 300

// Tab identifies an independently paginated list inside one view.
type Tab string

const (
	TabPosts   Tab = "posts"
	TabVideos  Tab = "videos"
	TabReposts Tab = "reposts"
)

// State is a copyable snapshot of a cursor.
type State struct {
	// Page is the next page to request, starting at 1.
	Page    int
	HasMore bool
	Loading bool
	// Initialized is set once the first page has been fetched, even if empty.
	Initialized bool
	HasItems    bool
}

// Cursor drives Idle(page, hasMore) -> Loading(page) -> Idle(page+1, hasMore').
type Cursor struct {
	state     State
	proximity float64
}

// NewCursor returns an idle cursor positioned before page 1.
func NewCursor(proximity float64) *Cursor {
	if proximity < 0 {
		proximity = DefaultProximity
	}
	return &Cursor{state: State{Page: 1, HasMore: true}, proximity: proximity}
}

// ShouldLoad reports whether a scroll at offset with content ending at
// contentEnd should trigger the next page.
func (c *Cursor) ShouldLoad(offset, contentEnd float64) bool {
	if c.state.Loading || !c.state.HasMore {
		return false
	}
	return contentEnd-offset <= c.proximity
}

// NeedsInitialFetch reports whether the first page was never requested.
func (c *Cursor) NeedsInitialFetch() bool {
	return !c.state.Initialized && !c.state.Loading && c.state.HasMore
}

// Begin moves to Loading and returns the page to request. ok is false when a
// load is already running or no pages remain; the state is then unchanged.
func (c *Cursor) Begin() (page int, ok bool) {
	if c.state.Loading || !c.state.HasMore {
		return 0, false
	}
	c.state.Loading = true
	return c.state.Page, true
}

// Succeed completes a load that returned n items. It reports false and
// changes nothing if no load was running.
func (c *Cursor) Succeed(n int, hasMore bool) bool {
	if !c.state.Loading {
		return false
	}
	c.state.Loading = false
	c.state.Page++
	c.state.HasMore = hasMore
	c.state.Initialized = true
	c.state.HasItems = c.state.HasItems || n > 0
	return true
}

// Fail returns to the idle state the load started from.
func (c *Cursor) Fail() {
	c.state.Loading = false
}

// Empty reports a fetched list with nothing in it.
func (c *Cursor) Empty() bool {
	return c.state.Initialized && !c.state.HasItems
}

// Loading reports whether a page request is outstanding.
func (c *Cursor) Loading() bool { return c.state.Loading }

// HasMore reports whether further pages may exist.
func (c *Cursor) HasMore() bool { return c.state.HasMore }

// Reset returns the cursor to its initial state.
func (c *Cursor) Reset() {
	c.state = State{Page: 1, HasMore: true}
}

// State returns a snapshot of the cursor.
func (c *Cursor) State() State { return c.state }

// Restore loads a snapshot. A snapshot taken mid-load restores as idle since
// the fetch it was waiting on did not survive.
func (c *Cursor) Restore(s State) {
	if s.Page < 1 {
		s.Page = 1
	}
	s.Loading = false
	c.state = s
}

// Tabs owns one cursor per content tab.
type Tabs struct {
	proximity float64
	cursors   map[Tab]*Cursor
}

// NewTabs returns an empty tab set whose cursors use proximity.
func NewTabs(proximity float64) *Tabs {
	return &Tabs{proximity: proximity, cursors: make(map[Tab]*Cursor)}
}

// Get returns the cursor for tab, creating it on first use.
func (t *Tabs) Get(tab Tab) *Cursor {
	c, ok := t.cursors[tab]
	if !ok {
		c = NewCursor(t.proximity)
		t.cursors[tab] = c
	}
	return c
}

// States snapshots every cursor.
func (t *Tabs) States() map[Tab]State {
	out := make(map[Tab]State, len(t.cursors))
	for tab, c := range t.cursors {
		out[tab] = c.State()
	}
	return out
}

// Restore replaces cursors with the given snapshots.
func (t *Tabs) Restore(states map[Tab]State) {
	for tab, s := range states {
		t.Get(tab).Restore(s)
	}
}
