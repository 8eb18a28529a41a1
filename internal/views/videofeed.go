package views

import (
	"context"
	"slices"

	"feedsync/internal/api"
	"feedsync/internal/eventbus"
	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/samber/lo"
)

// prefetchDistance is how many unseen videos may remain before the next
// page is requested.
const prefetchDistance = 3

// ShortVideoFeed is a full-screen pager over a user's videos. The info
// overlay is shared by every mounted feed.
type ShortVideoFeed struct {
	lifecycle
	userID string
	deps   Deps

	cursor  *pagination.Cursor
	items   []models.Post
	index   int
	overlay bool
	err     error

	gen    uint64
	cancel context.CancelFunc
}

// NewShortVideoFeed returns an unmounted feed of userID's videos.
func NewShortVideoFeed(userID string, deps Deps) *ShortVideoFeed {
	return &ShortVideoFeed{
		lifecycle: lifecycle{name: "short-video"},
		userID:    userID,
		deps:      deps,
		cursor:    pagination.NewCursor(prefetchDistance),
		overlay:   true,
	}
}

// Mount subscribes to overlay, status and follow events and requests the
// first page.
func (f *ShortVideoFeed) Mount(parent context.Context) error {
	if f.Mounted() {
		return nil
	}
	f.start(parent)
	subs := []func() (*eventbus.Subscription, error){
		func() (*eventbus.Subscription, error) {
			return eventbus.On(f.deps.Bus, func(e eventbus.ViewerOverlayToggled) {
				f.overlay = e.Visible
				f.changed()
			})
		},
		func() (*eventbus.Subscription, error) {
			return eventbus.On(f.deps.Bus, func(e eventbus.PostStatusChanged) {
				if setJobStatus(f.items, e) {
					f.changed()
				}
			})
		},
		func() (*eventbus.Subscription, error) {
			return eventbus.On(f.deps.Bus, func(e eventbus.FollowChanged) {
				if cur, ok := f.Current(); ok && cur.Author.ID == e.TargetID {
					f.changed()
				}
			})
		},
	}
	for _, sub := range subs {
		if err := f.hold(sub()); err != nil {
			f.stop()
			return err
		}
	}
	if f.cursor.NeedsInitialFetch() {
		f.loadPage()
	}
	f.changed()
	return nil
}

// Unmount aborts the page fetch and releases subscriptions.
func (f *ShortVideoFeed) Unmount() {
	if !f.Mounted() {
		return
	}
	f.abort()
	f.stop()
}

// Show moves to video i and prefetches when the end is near.
func (f *ShortVideoFeed) Show(i int) {
	if len(f.items) == 0 {
		return
	}
	f.index = min(max(i, 0), len(f.items)-1)
	if f.cursor.ShouldLoad(float64(f.index+1), float64(len(f.items))) {
		f.loadPage()
	}
	f.changed()
}

// Index returns the position of the visible video.
func (f *ShortVideoFeed) Index() int { return f.index }

// Current returns the visible video.
func (f *ShortVideoFeed) Current() (models.Post, bool) {
	if f.index >= len(f.items) {
		return models.Post{}, false
	}
	return f.items[f.index].Clone(), true
}

// Videos returns a copy of the loaded videos.
func (f *ShortVideoFeed) Videos() []models.Post {
	return lo.Map(f.items, func(p models.Post, _ int) models.Post { return p.Clone() })
}

// State returns the pagination state.
func (f *ShortVideoFeed) State() pagination.State { return f.cursor.State() }

// Overlay reports whether the info overlay is shown.
func (f *ShortVideoFeed) Overlay() bool { return f.overlay }

// Err returns the last fetch failure.
func (f *ShortVideoFeed) Err() error { return f.err }

// SetOverlay shows or hides the overlay on every mounted feed.
func (f *ShortVideoFeed) SetOverlay(visible bool) {
	f.deps.Bus.Publish(eventbus.ViewerOverlayToggled{Visible: visible})
}

// Like flips the viewer's like on the visible video.
func (f *ShortVideoFeed) Like(ctx context.Context) error {
	cur, ok := f.Current()
	if !ok {
		return models.NewNotFoundError("Post", "")
	}
	return f.deps.Toggles.ToggleLike(ctx, feedTarget{f}, cur.ID)
}

// SetJobStatus moves the visible video's job to status.
func (f *ShortVideoFeed) SetJobStatus(ctx context.Context, status models.JobStatus) error {
	cur, ok := f.Current()
	if !ok {
		return models.NewNotFoundError("Post", "")
	}
	return f.deps.Toggles.SetJobStatus(ctx, feedTarget{f}, cur.ID, status)
}

// ToggleFollowAuthor flips the viewer's follow of the visible video's author.
func (f *ShortVideoFeed) ToggleFollowAuthor(ctx context.Context) error {
	cur, ok := f.Current()
	if !ok {
		return models.NewNotFoundError("Post", "")
	}
	return f.deps.Toggles.ToggleFollow(ctx, cur.Author.ID)
}

// FollowingAuthor reports the follow state of the visible video's author.
func (f *ShortVideoFeed) FollowingAuthor() bool {
	cur, ok := f.Current()
	return ok && f.deps.Toggles.Follows().Following(cur.Author.ID)
}

func (f *ShortVideoFeed) loadPage() {
	if !f.Mounted() {
		return
	}
	page, ok := f.cursor.Begin()
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(f.ctx)
	f.gen++
	gen := f.gen
	f.cancel = cancel

	fetch(f.deps.Dispatcher, ctx, f.name, func(ctx context.Context) (api.PostPage, error) {
		return f.deps.Backend.FetchPosts(ctx, f.userID, pagination.TabVideos, page, f.deps.pageSize())
	}, func(res api.PostPage, err error) {
		cancel()
		if gen != f.gen {
			return
		}
		f.cancel = nil
		if err != nil {
			f.cursor.Fail()
			f.err = err
			f.changed()
			return
		}
		f.err = nil
		videos := lo.Filter(res.Items, func(p models.Post, _ int) bool { return p.IsVideo() })
		f.items = lo.UniqBy(append(f.items, videos...), func(p models.Post) string { return p.ID })
		f.cursor.Succeed(len(res.Items), res.HasMore)
		f.changed()
	})
}

func (f *ShortVideoFeed) abort() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil
	f.gen++
	f.cursor.Fail()
}

// feedTarget exposes the loaded videos to the mutation layer.
type feedTarget struct{ f *ShortVideoFeed }

func (t feedTarget) Post(id string) *models.Post {
	if i := slices.IndexFunc(t.f.items, func(p models.Post) bool { return p.ID == id }); i >= 0 {
		return &t.f.items[i]
	}
	return nil
}

func (t feedTarget) Commit() { t.f.changed() }
