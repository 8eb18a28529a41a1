// Package entitycache keeps per-view snapshots so a remounted view can skip
// refetching and restore its scroll position. Entries live until ClearAll.
package entitycache

import (
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/samber/lo"
)

// ViewKind names the kind of view a snapshot belongs to.
type ViewKind string

const (
	ViewProfile    ViewKind = "profile"
	ViewPostDetail ViewKind = "post-detail"
)

// Key addresses one cached view.
type Key struct {
	Kind     ViewKind
	TargetID string
}

// Snapshot is the cached state of one view.
type Snapshot struct {
	Profile      *models.Profile
	Post         *models.Post
	Items        map[pagination.Tab][]models.Post
	Tabs         map[pagination.Tab]pagination.State
	ScrollOffset float64
	// Tombstones only grows within a session.
	Tombstones map[string]struct{}
	// Deleting holds ids whose delete was sent but not yet confirmed. They
	// are hidden like tombstones until the delete settles.
	Deleting map[string]struct{}
}

// Patch is a partial snapshot. Nil fields are left untouched by Put.
// Tombstones are added to the existing set, never replacing it.
type Patch struct {
	Profile      *models.Profile
	Post         *models.Post
	Items        map[pagination.Tab][]models.Post
	Tabs         map[pagination.Tab]pagination.State
	ScrollOffset *float64
	Tombstones   []string
}

// Cache is the session-scoped store of view snapshots.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*Snapshot
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]*Snapshot)}
}

// Get returns a copy of the stored snapshot, or an empty default.
func (c *Cache) Get(kind ViewKind, targetID string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[Key{kind, targetID}]
	if !ok {
		return Snapshot{Tombstones: map[string]struct{}{}, Deleting: map[string]struct{}{}}
	}
	return s.clone()
}

// Has reports whether anything was stored for the view.
func (c *Cache) Has(kind ViewKind, targetID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[Key{kind, targetID}]
	return ok
}

// Put shallow-merges p into the stored snapshot.
func (c *Cache) Put(kind ViewKind, targetID string, p Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.entry(Key{kind, targetID})

	if p.Profile != nil {
		profile := *p.Profile
		s.Profile = &profile
	}
	if p.Post != nil {
		post := p.Post.Clone()
		s.Post = &post
	}
	if p.Items != nil {
		s.Items = cloneItems(p.Items)
	}
	if p.Tabs != nil {
		s.Tabs = cloneTabs(p.Tabs)
	}
	if p.ScrollOffset != nil {
		s.ScrollOffset = *p.ScrollOffset
	}
	for _, id := range p.Tombstones {
		s.Tombstones[id] = struct{}{}
	}
	if p.Items != nil || len(p.Tombstones) > 0 {
		s.dropHidden()
	}
}

// Tombstone marks entityID deleted for the view and removes it from the
// cached items. A pending delete of entityID is settled by it.
func (c *Cache) Tombstone(kind ViewKind, targetID, entityID string) {
	c.Put(kind, targetID, Patch{Tombstones: []string{entityID}})
	c.mu.Lock()
	delete(c.entry(Key{kind, targetID}).Deleting, entityID)
	c.mu.Unlock()
}

// MarkDeleting hides entityID from the view while its delete is in flight.
func (c *Cache) MarkDeleting(kind ViewKind, targetID, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.entry(Key{kind, targetID})
	s.Deleting[entityID] = struct{}{}
	s.dropHidden()
}

// UnmarkDeleting makes entityID visible again after its delete failed.
func (c *Cache) UnmarkDeleting(kind ViewKind, targetID, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[Key{kind, targetID}]; ok {
		delete(s.Deleting, entityID)
	}
}

// IsTombstoned reports whether entityID was deleted in this view.
func (c *Cache) IsTombstoned(kind ViewKind, targetID, entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[Key{kind, targetID}]
	if !ok {
		return false
	}
	_, dead := s.Tombstones[entityID]
	return dead
}

// IsHidden reports whether entityID is tombstoned or has a delete in flight
// in this view.
func (c *Cache) IsHidden(kind ViewKind, targetID, entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[Key{kind, targetID}]
	return ok && s.hidden(entityID)
}

// FilterPosts drops tombstoned posts, and posts being deleted, from a
// freshly fetched list.
func (c *Cache) FilterPosts(kind ViewKind, targetID string, posts []models.Post) []models.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[Key{kind, targetID}]
	if !ok || len(s.Tombstones)+len(s.Deleting) == 0 {
		return posts
	}
	return lo.Reject(posts, func(p models.Post, _ int) bool { return s.hidden(p.ID) })
}

// ClearAll drops every snapshot. Called on logout.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Snapshot)
}

// Len returns the number of cached views.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) entry(k Key) *Snapshot {
	s, ok := c.entries[k]
	if !ok {
		s = &Snapshot{Tombstones: make(map[string]struct{}), Deleting: make(map[string]struct{})}
		c.entries[k] = s
	}
	return s
}

func (s *Snapshot) hidden(id string) bool {
	_, dead := s.Tombstones[id]
	_, deleting := s.Deleting[id]
	return dead || deleting
}

func (s *Snapshot) dropHidden() {
	for tab, items := range s.Items {
		s.Items[tab] = lo.Reject(items, func(p models.Post, _ int) bool { return s.hidden(p.ID) })
	}
}

func (s *Snapshot) clone() Snapshot {
	out := Snapshot{
		ScrollOffset: s.ScrollOffset,
		Items:        cloneItems(s.Items),
		Tabs:         cloneTabs(s.Tabs),
		Tombstones:   make(map[string]struct{}, len(s.Tombstones)),
		Deleting:     make(map[string]struct{}, len(s.Deleting)),
	}
	if s.Profile != nil {
		profile := *s.Profile
		out.Profile = &profile
	}
	if s.Post != nil {
		post := s.Post.Clone()
		out.Post = &post
	}
	for id := range s.Tombstones {
		out.Tombstones[id] = struct{}{}
	}
	for id := range s.Deleting {
		out.Deleting[id] = struct{}{}
	}
	return out
}

func cloneItems(in map[pagination.Tab][]models.Post) map[pagination.Tab][]models.Post {
	if in == nil {
		return nil
	}
	out := make(map[pagination.Tab][]models.Post, len(in))
	for tab, items := range in {
		out[tab] = lo.Map(items, func(p models.Post, _ int) models.Post { return p.Clone() })
	}
	return out
}

func cloneTabs(in map[pagination.Tab]pagination.State) map[pagination.Tab]pagination.State {
	if in == nil {
		return nil
	}
	out := make(map[pagination.Tab]pagination.State, len(in))
	for tab, st := range in {
		out[tab] = st
	}
	return out
}
