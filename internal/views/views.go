// Package views holds the mounted screens of the client: the state each one
// renders, its content fetches and the gestures it turns into mutations.
// Views must only be used from the owning goroutine.
package views

import (
	"context"

	"feedsync/internal/api"
	"feedsync/internal/comments"
	"feedsync/internal/dispatch"
	"feedsync/internal/entitycache"
	"feedsync/internal/eventbus"
	"feedsync/internal/models"
	"feedsync/internal/mutation"
	"feedsync/internal/observability"
	"feedsync/internal/pagination"
)

// Backend is the read side of the REST client plus what the comment tree
// needs.
type Backend interface {
	comments.Backend
	FetchProfile(ctx context.Context, userID string) (models.Profile, error)
	FetchPosts(ctx context.Context, userID string, tab pagination.Tab, page, limit int) (api.PostPage, error)
	FetchPost(ctx context.Context, postID string) (models.Post, error)
	FetchFollow(ctx context.Context, targetID string) (api.ToggleResult, error)
}

// Deps groups the collaborators shared by every view.
type Deps struct {
	Dispatcher  dispatch.Dispatcher
	Backend     Backend
	Cache       *entitycache.Cache
	Bus         *eventbus.Bus
	Coordinator *mutation.Coordinator
	Toggles     *mutation.Toggles
	// Author returns the signed-in viewer, shown on provisional comments.
	Author    func() models.UserSummary
	PageSize  int
	Proximity float64
}

func (d Deps) pageSize() int {
	if d.PageSize <= 0 {
		return 20
	}
	return d.PageSize
}

// lifecycle is the mounted state common to every view: a context that
// cancels its fetches and the bus subscriptions it holds.
type lifecycle struct {
	name     string
	ctx      context.Context
	cancel   context.CancelFunc
	subs     []*eventbus.Subscription
	onChange func()
}

func (l *lifecycle) start(parent context.Context) {
	l.ctx, l.cancel = context.WithCancel(parent)
}

func (l *lifecycle) stop() {
	for _, sub := range l.subs {
		sub.Unsubscribe()
	}
	l.subs = nil
	if l.cancel != nil {
		l.cancel()
	}
}

// Mounted reports whether the view is active.
func (l *lifecycle) Mounted() bool {
	return l.ctx != nil && l.ctx.Err() == nil
}

// OnChange registers fn to run after every state change.
func (l *lifecycle) OnChange(fn func()) {
	l.onChange = fn
}

func (l *lifecycle) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}

func (l *lifecycle) hold(sub *eventbus.Subscription, err error) error {
	if err != nil {
		return err
	}
	l.subs = append(l.subs, sub)
	return nil
}

// fetch runs a content request. done sees ctx.Err() when the fetch was
// cancelled, whatever the call returned.
func fetch[T any](d dispatch.Dispatcher, ctx context.Context, view string, call func(context.Context) (T, error), done func(T, error)) {
	var out T
	d.Dispatch(ctx, func(ctx context.Context) error {
		var err error
		out, err = call(ctx)
		return err
	}, func(err error) {
		if ctx.Err() != nil {
			observability.FetchesCancelled.WithLabelValues(view).Inc()
			done(out, ctx.Err())
			return
		}
		if err != nil {
			observability.LogAsyncOperationError(ctx, view+".fetch", err, nil)
		}
		done(out, err)
	})
}

// setJobStatus applies a status broadcast to every copy of the post in list.
func setJobStatus(list []models.Post, e eventbus.PostStatusChanged) bool {
	changed := false
	for i := range list {
		p := &list[i]
		if p.ID == e.PostID && p.JobStatus != e.Status {
			p.JobStatus = e.Status
			changed = true
		}
		if p.OriginalPost != nil && p.OriginalPost.ID == e.PostID && p.OriginalPost.JobStatus != e.Status {
			p.OriginalPost.JobStatus = e.Status
			changed = true
		}
	}
	return changed
}
