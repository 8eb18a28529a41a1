package views

import (
	"context"
	"slices"

	"feedsync/internal/api"
	"feedsync/internal/entitycache"
	"feedsync/internal/eventbus"
	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/samber/lo"
)

// ProfileTabs lists the paginated tabs of a profile in display order.
var ProfileTabs = []pagination.Tab{pagination.TabPosts, pagination.TabVideos, pagination.TabReposts}

// ProfileView renders one user's profile with a paginated list per tab.
type ProfileView struct {
	lifecycle
	userID string
	deps   Deps

	profile   *models.Profile
	following bool
	tabs      *pagination.Tabs
	items     map[pagination.Tab][]models.Post
	active    pagination.Tab
	scroll    float64
	err       error

	profileGen uint64
	tabGen     map[pagination.Tab]uint64
	tabCancel  map[pagination.Tab]context.CancelFunc
}

// NewProfileView returns an unmounted view of userID.
func NewProfileView(userID string, deps Deps) *ProfileView {
	return &ProfileView{
		lifecycle: lifecycle{name: "profile"},
		userID:    userID,
		deps:      deps,
		tabs:      pagination.NewTabs(deps.Proximity),
		items:     make(map[pagination.Tab][]models.Post),
		active:    pagination.TabPosts,
		tabGen:    make(map[pagination.Tab]uint64),
		tabCancel: make(map[pagination.Tab]context.CancelFunc),
	}
}

// Mount activates the view. A cached snapshot is restored without fetching;
// otherwise the profile and the first page of the active tab are requested.
func (v *ProfileView) Mount(parent context.Context) error {
	if v.Mounted() {
		return nil
	}
	v.start(parent)
	if err := v.hold(eventbus.On(v.deps.Bus, v.onFollowChanged)); err != nil {
		v.stop()
		return err
	}
	if err := v.hold(eventbus.On(v.deps.Bus, v.onStatusChanged)); err != nil {
		v.stop()
		return err
	}

	snap := v.deps.Cache.Get(entitycache.ViewProfile, v.userID)
	if snap.Profile != nil {
		v.profile = snap.Profile
		v.items = lo.Ternary(snap.Items != nil, snap.Items, map[pagination.Tab][]models.Post{})
		v.tabs.Restore(snap.Tabs)
		v.scroll = snap.ScrollOffset
		v.following = v.deps.Toggles.Follows().Following(v.userID)
	} else {
		v.fetchProfile()
	}
	v.ensureTab(v.active)
	v.changed()
	return nil
}

// Unmount aborts outstanding fetches, releases subscriptions and saves the
// view state, scroll offset included.
func (v *ProfileView) Unmount() {
	if !v.Mounted() {
		return
	}
	v.profileGen++
	for _, tab := range ProfileTabs {
		v.abortTab(tab)
	}
	offset := v.scroll
	v.deps.Cache.Put(entitycache.ViewProfile, v.userID, entitycache.Patch{
		Profile:      v.profile,
		Items:        v.items,
		Tabs:         v.tabs.States(),
		ScrollOffset: &offset,
	})
	v.stop()
}

// Refresh refetches the profile and restarts every tab from page one.
func (v *ProfileView) Refresh() {
	if !v.Mounted() {
		return
	}
	for _, tab := range ProfileTabs {
		v.abortTab(tab)
		v.tabs.Get(tab).Reset()
	}
	v.items = make(map[pagination.Tab][]models.Post)
	v.fetchProfile()
	v.ensureTab(v.active)
	v.changed()
}

// OnScroll records the scroll offset and requests the next page of the
// active tab when offset is near contentEnd. It reports whether a request
// was issued.
func (v *ProfileView) OnScroll(offset, contentEnd float64) bool {
	v.scroll = offset
	if !v.tabs.Get(v.active).ShouldLoad(offset, contentEnd) {
		return false
	}
	return v.loadPage(v.active)
}

// LoadMore requests the next page of the active tab.
func (v *ProfileView) LoadMore() bool {
	return v.loadPage(v.active)
}

// SwitchTab makes tab active. An in-flight fetch of the previous tab is
// aborted.
func (v *ProfileView) SwitchTab(tab pagination.Tab) {
	if tab == v.active {
		return
	}
	v.abortTab(v.active)
	v.active = tab
	v.ensureTab(tab)
	v.changed()
}

// Profile returns the rendered profile.
func (v *ProfileView) Profile() (models.Profile, bool) {
	if v.profile == nil {
		return models.Profile{}, false
	}
	return *v.profile, true
}

// Following reports the follow button state for the profile owner.
func (v *ProfileView) Following() bool {
	return v.deps.Toggles.Follows().Following(v.userID)
}

// Posts returns a copy of the items of tab.
func (v *ProfileView) Posts(tab pagination.Tab) []models.Post {
	return lo.Map(v.items[tab], func(p models.Post, _ int) models.Post { return p.Clone() })
}

// ActiveTab returns the selected tab.
func (v *ProfileView) ActiveTab() pagination.Tab { return v.active }

// TabState returns the pagination state of tab.
func (v *ProfileView) TabState(tab pagination.Tab) pagination.State {
	return v.tabs.Get(tab).State()
}

// ScrollOffset returns the current scroll position.
func (v *ProfileView) ScrollOffset() float64 { return v.scroll }

// Err returns the last fetch failure, cleared by the next success.
func (v *ProfileView) Err() error { return v.err }

// ToggleFollow flips the viewer's follow of the profile owner.
func (v *ProfileView) ToggleFollow(ctx context.Context) error {
	return v.deps.Toggles.ToggleFollow(ctx, v.userID)
}

// Like flips the viewer's like on a post of the active tab.
func (v *ProfileView) Like(ctx context.Context, postID string) error {
	return v.deps.Toggles.ToggleLike(ctx, v.target(v.active), postID)
}

// Repost flips the viewer's repost of a post of the active tab.
func (v *ProfileView) Repost(ctx context.Context, postID string) error {
	return v.deps.Toggles.ToggleRepost(ctx, v.target(v.active), postID)
}

// SetJobStatus moves a job post of the active tab to status.
func (v *ProfileView) SetJobStatus(ctx context.Context, postID string, status models.JobStatus) error {
	return v.deps.Toggles.SetJobStatus(ctx, v.target(v.active), postID, status)
}

// DeletePost deletes a post of the active tab.
func (v *ProfileView) DeletePost(ctx context.Context, postID string) error {
	return v.deps.Toggles.DeletePost(ctx, v.target(v.active), postID)
}

// Commit saves the rendered state to the cache and re-renders.
func (v *ProfileView) Commit() {
	v.deps.Cache.Put(entitycache.ViewProfile, v.userID, entitycache.Patch{
		Profile: v.profile,
		Items:   v.items,
		Tabs:    v.tabs.States(),
	})
	v.changed()
}

func (v *ProfileView) target(tab pagination.Tab) *profileTab {
	return &profileTab{v: v, tab: tab}
}

func (v *ProfileView) fetchProfile() {
	v.profileGen++
	gen := v.profileGen
	fetch(v.deps.Dispatcher, v.ctx, v.name, func(ctx context.Context) (models.Profile, error) {
		return v.deps.Backend.FetchProfile(ctx, v.userID)
	}, func(p models.Profile, err error) {
		if gen != v.profileGen {
			return
		}
		if err != nil {
			v.err = err
			v.changed()
			return
		}
		v.err = nil
		v.profile = &p
		v.following = p.Following
		switch toggles := v.deps.Toggles; {
		case v.userID == v.deps.Coordinator.ViewerID():
		case toggles.FollowPending(v.userID):
			// Show the unconfirmed toggle on top of the fetched counts.
			if local := toggles.Follows().Following(v.userID); local != p.Following {
				v.following = local
				p.FollowersCount = max(p.FollowersCount+lo.Ternary(local, 1, -1), 0)
			}
		default:
			toggles.ObserveFollow(v.userID, p.Following)
		}
		v.Commit()
	})
}

func (v *ProfileView) ensureTab(tab pagination.Tab) {
	if v.tabs.Get(tab).NeedsInitialFetch() {
		v.loadPage(tab)
	}
}

func (v *ProfileView) loadPage(tab pagination.Tab) bool {
	if !v.Mounted() {
		return false
	}
	cursor := v.tabs.Get(tab)
	page, ok := cursor.Begin()
	if !ok {
		return false
	}
	ctx, cancel := context.WithCancel(v.ctx)
	v.tabGen[tab]++
	gen := v.tabGen[tab]
	v.tabCancel[tab] = cancel

	fetch(v.deps.Dispatcher, ctx, v.name, func(ctx context.Context) (api.PostPage, error) {
		return v.deps.Backend.FetchPosts(ctx, v.userID, tab, page, v.deps.pageSize())
	}, func(res api.PostPage, err error) {
		cancel()
		if gen != v.tabGen[tab] {
			return
		}
		delete(v.tabCancel, tab)
		if err != nil {
			cursor.Fail()
			v.err = err
			v.changed()
			return
		}
		v.err = nil
		v.items[tab] = v.deps.Cache.FilterPosts(entitycache.ViewProfile, v.userID,
			lo.UniqBy(append(v.items[tab], res.Items...), func(p models.Post) string { return p.ID }))
		cursor.Succeed(len(res.Items), res.HasMore)
		v.Commit()
	})
	v.changed()
	return true
}

// abortTab cancels the in-flight fetch of tab, if any, and returns its
// cursor to idle so the fetch can be retried.
func (v *ProfileView) abortTab(tab pagination.Tab) {
	cancel, ok := v.tabCancel[tab]
	if !ok {
		return
	}
	cancel()
	delete(v.tabCancel, tab)
	v.tabGen[tab]++
	v.tabs.Get(tab).Fail()
}

func (v *ProfileView) onFollowChanged(e eventbus.FollowChanged) {
	if v.profile == nil {
		return
	}
	switch {
	case e.TargetID == v.userID:
		if e.Following == v.following {
			return
		}
		v.following = e.Following
		v.profile.FollowersCount = max(v.profile.FollowersCount+lo.Ternary(e.Following, 1, -1), 0)
	case v.userID == v.deps.Coordinator.ViewerID():
		v.profile.FollowingCount = max(v.profile.FollowingCount+lo.Ternary(e.Following, 1, -1), 0)
	default:
		return
	}
	v.Commit()
}

func (v *ProfileView) onStatusChanged(e eventbus.PostStatusChanged) {
	changed := false
	for tab := range v.items {
		if setJobStatus(v.items[tab], e) {
			changed = true
		}
	}
	if changed {
		v.Commit()
	}
}

// profileTab exposes one tab's list to the mutation layer.
type profileTab struct {
	v   *ProfileView
	tab pagination.Tab
}

func (t *profileTab) Post(id string) *models.Post {
	items := t.v.items[t.tab]
	if i := slices.IndexFunc(items, func(p models.Post) bool { return p.ID == id }); i >= 0 {
		return &items[i]
	}
	return nil
}

func (t *profileTab) Commit() { t.v.Commit() }

func (t *profileTab) RemovePost(id string) (models.Post, int, bool) {
	items := t.v.items[t.tab]
	i := slices.IndexFunc(items, func(p models.Post) bool { return p.ID == id })
	if i < 0 {
		return models.Post{}, -1, false
	}
	removed := items[i]
	t.v.items[t.tab] = slices.Delete(items, i, i+1)
	if t.v.profile != nil {
		t.v.profile.PostsCount = max(t.v.profile.PostsCount-1, 0)
	}
	return removed, i, true
}

func (t *profileTab) RestorePost(p models.Post, index int) {
	items := t.v.items[t.tab]
	t.v.items[t.tab] = slices.Insert(items, min(index, len(items)), p)
	if t.v.profile != nil {
		t.v.profile.PostsCount++
	}
}

func (t *profileTab) HidePost(id string) {
	t.v.deps.Cache.MarkDeleting(entitycache.ViewProfile, t.v.userID, id)
	t.v.deps.Cache.MarkDeleting(entitycache.ViewPostDetail, id, id)
}

func (t *profileTab) UnhidePost(id string) {
	t.v.deps.Cache.UnmarkDeleting(entitycache.ViewProfile, t.v.userID, id)
	t.v.deps.Cache.UnmarkDeleting(entitycache.ViewPostDetail, id, id)
}

func (t *profileTab) TombstonePost(id string) {
	t.v.deps.Cache.Tombstone(entitycache.ViewProfile, t.v.userID, id)
	t.v.deps.Cache.Tombstone(entitycache.ViewPostDetail, id, id)
	for tab, items := range t.v.items {
		t.v.items[tab] = lo.Reject(items, func(p models.Post, _ int) bool { return p.ID == id })
	}
}
