package views

import (
	"context"

	"feedsync/internal/comments"
	"feedsync/internal/entitycache"
	"feedsync/internal/eventbus"
	"feedsync/internal/models"
)

// PostDetailView renders one post with its comment tree.
type PostDetailView struct {
	lifecycle
	postID string
	deps   Deps

	post           *models.Post
	tree           *comments.Tree
	commentsLoaded bool
	closed         bool
	authorID       string
	err            error
	postGen        uint64
}

// NewPostDetailView returns an unmounted view of postID.
func NewPostDetailView(postID string, deps Deps) *PostDetailView {
	v := &PostDetailView{
		lifecycle: lifecycle{name: "post-detail"},
		postID:    postID,
		deps:      deps,
	}
	v.tree = comments.NewTree(postID, comments.Deps{
		Coordinator: deps.Coordinator,
		Dispatcher:  deps.Dispatcher,
		Backend:     deps.Backend,
		Cache:       deps.Cache,
		Author:      deps.Author,
	})
	v.tree.OnChange(v.syncCommentCount)
	return v
}

// Mount activates the view. A deleted post mounts closed.
func (v *PostDetailView) Mount(parent context.Context) error {
	if v.Mounted() {
		return nil
	}
	v.start(parent)
	if err := v.hold(eventbus.On(v.deps.Bus, v.onStatusChanged)); err != nil {
		v.stop()
		return err
	}
	if err := v.hold(eventbus.On(v.deps.Bus, func(e eventbus.FollowChanged) {
		if e.TargetID == v.authorID {
			v.changed()
		}
	})); err != nil {
		v.stop()
		return err
	}

	if v.deps.Cache.IsTombstoned(entitycache.ViewPostDetail, v.postID, v.postID) {
		v.closed = true
		v.changed()
		return nil
	}
	switch snap := v.deps.Cache.Get(entitycache.ViewPostDetail, v.postID); {
	case v.deleting():
	case snap.Post != nil:
		v.setPost(*snap.Post)
	default:
		v.fetchPost()
	}
	v.loadComments()
	v.changed()
	return nil
}

// Unmount aborts outstanding fetches and releases subscriptions.
func (v *PostDetailView) Unmount() {
	if !v.Mounted() {
		return
	}
	v.postGen++
	v.deps.Cache.Put(entitycache.ViewPostDetail, v.postID, entitycache.Patch{Post: v.post})
	v.stop()
}

// Refresh refetches the post and reloads the comment tree.
func (v *PostDetailView) Refresh() {
	if !v.Mounted() || v.closed {
		return
	}
	v.fetchPost()
	v.loadComments()
}

// Post returns the rendered post.
func (v *PostDetailView) Post() (models.Post, bool) {
	if v.post == nil {
		return models.Post{}, false
	}
	return v.post.Clone(), true
}

// Comments returns the comment tree.
func (v *PostDetailView) Comments() *comments.Tree { return v.tree }

// CommentsLoaded reports whether the tree holds a fetched list.
func (v *PostDetailView) CommentsLoaded() bool { return v.commentsLoaded }

// Closed reports that the post was deleted and the view should be dismissed.
func (v *PostDetailView) Closed() bool { return v.closed }

// Err returns the last fetch failure.
func (v *PostDetailView) Err() error { return v.err }

// FollowingAuthor reports the follow state of the post's author.
func (v *PostDetailView) FollowingAuthor() bool {
	return v.deps.Toggles.Follows().Following(v.authorID)
}

// ToggleFollowAuthor flips the viewer's follow of the post's author.
func (v *PostDetailView) ToggleFollowAuthor(ctx context.Context) error {
	return v.deps.Toggles.ToggleFollow(ctx, v.authorID)
}

// Like flips the viewer's like on the post.
func (v *PostDetailView) Like(ctx context.Context) error {
	return v.deps.Toggles.ToggleLike(ctx, detailTarget{v}, v.postID)
}

// Repost flips the viewer's repost of the post.
func (v *PostDetailView) Repost(ctx context.Context) error {
	return v.deps.Toggles.ToggleRepost(ctx, detailTarget{v}, v.postID)
}

// SetJobStatus moves the post to status.
func (v *PostDetailView) SetJobStatus(ctx context.Context, status models.JobStatus) error {
	return v.deps.Toggles.SetJobStatus(ctx, detailTarget{v}, v.postID, status)
}

// Delete deletes the post. The view closes once the server confirms.
func (v *PostDetailView) Delete(ctx context.Context) error {
	return v.deps.Toggles.DeletePost(ctx, detailTarget{v}, v.postID)
}

// AddComment submits a comment, or a reply when parentID is set.
func (v *PostDetailView) AddComment(ctx context.Context, text, parentID string) (string, error) {
	return v.tree.Insert(ctx, text, parentID)
}

// Commit saves the post to the cache and re-renders.
func (v *PostDetailView) Commit() {
	if v.post != nil {
		v.deps.Cache.Put(entitycache.ViewPostDetail, v.postID, entitycache.Patch{Post: v.post})
	}
	v.changed()
}

func (v *PostDetailView) setPost(p models.Post) {
	if v.commentsLoaded {
		p.CommentsCount = v.tree.Count()
	} else {
		v.tree.SetCount(p.CommentsCount)
	}
	v.post = &p
	v.authorID = p.Author.ID
}

func (v *PostDetailView) fetchPost() {
	v.postGen++
	gen := v.postGen
	fetch(v.deps.Dispatcher, v.ctx, v.name, func(ctx context.Context) (models.Post, error) {
		return v.deps.Backend.FetchPost(ctx, v.postID)
	}, func(p models.Post, err error) {
		if gen != v.postGen {
			return
		}
		if err != nil {
			v.err = err
			if models.IsNotFound(err) {
				v.closed = true
			}
			v.changed()
			return
		}
		v.err = nil
		if v.deleting() {
			return
		}
		v.setPost(p)
		v.Commit()
	})
}

// deleting reports whether a delete of the post is awaiting the server.
func (v *PostDetailView) deleting() bool {
	return v.deps.Cache.IsHidden(entitycache.ViewPostDetail, v.postID, v.postID)
}

func (v *PostDetailView) loadComments() {
	v.tree.Load(v.ctx, func(err error) {
		if err != nil {
			if v.Mounted() {
				v.err = err
				v.changed()
			}
			return
		}
		v.commentsLoaded = true
		v.syncCommentCount()
	})
}

func (v *PostDetailView) syncCommentCount() {
	if v.post != nil {
		v.post.CommentsCount = v.tree.Count()
		v.Commit()
		return
	}
	v.changed()
}

func (v *PostDetailView) onStatusChanged(e eventbus.PostStatusChanged) {
	if v.post == nil {
		return
	}
	list := []models.Post{*v.post}
	if setJobStatus(list, e) {
		v.post = &list[0]
		v.Commit()
	}
}

// detailTarget exposes the single post of the view to the mutation layer.
type detailTarget struct{ v *PostDetailView }

func (t detailTarget) Post(id string) *models.Post {
	if t.v.post != nil && t.v.post.ID == id {
		return t.v.post
	}
	return nil
}

func (t detailTarget) Commit() { t.v.Commit() }

func (t detailTarget) RemovePost(id string) (models.Post, int, bool) {
	p := t.Post(id)
	if p == nil {
		return models.Post{}, -1, false
	}
	removed := *p
	t.v.post = nil
	return removed, 0, true
}

func (t detailTarget) RestorePost(p models.Post, _ int) {
	t.v.post = &p
}

func (t detailTarget) HidePost(id string) {
	t.v.deps.Cache.MarkDeleting(entitycache.ViewPostDetail, t.v.postID, id)
	if t.v.authorID != "" {
		t.v.deps.Cache.MarkDeleting(entitycache.ViewProfile, t.v.authorID, id)
	}
}

func (t detailTarget) UnhidePost(id string) {
	t.v.deps.Cache.UnmarkDeleting(entitycache.ViewPostDetail, t.v.postID, id)
	if t.v.authorID != "" {
		t.v.deps.Cache.UnmarkDeleting(entitycache.ViewProfile, t.v.authorID, id)
	}
}

// TombstonePost records a confirmed deletion here and in the author's
// profile, then closes the view.
func (t detailTarget) TombstonePost(id string) {
	t.v.deps.Cache.Tombstone(entitycache.ViewPostDetail, t.v.postID, id)
	if t.v.authorID != "" {
		t.v.deps.Cache.Tombstone(entitycache.ViewProfile, t.v.authorID, id)
	}
	t.v.closed = true
}
