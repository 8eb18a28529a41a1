package mutation

import (
	"context"

	"feedsync/internal/api"
	"feedsync/internal/eventbus"
	"feedsync/internal/models"
)

// Backend is the slice of the REST client the toggle operations use.
type Backend interface {
	SetFollow(ctx context.Context, targetID string, following bool) (api.ToggleResult, error)
	SetPostLike(ctx context.Context, postID string, liked bool) (api.ToggleResult, error)
	SetRepost(ctx context.Context, postID string, reposted bool) (api.ToggleResult, error)
	SetJobStatus(ctx context.Context, postID string, status models.JobStatus) (models.Post, error)
	DeletePost(ctx context.Context, postID string) error
}

// PostTarget gives an operation access to one view's copy of a post.
type PostTarget interface {
	// Post returns the live post, or nil once the view no longer holds it.
	Post(id string) *models.Post
	// Commit persists view state after a change.
	Commit()
}

// PostList is a PostTarget whose posts can be removed.
type PostList interface {
	PostTarget
	RemovePost(id string) (post models.Post, index int, ok bool)
	RestorePost(post models.Post, index int)
	// HidePost keeps id out of refetched content while its delete is in
	// flight; UnhidePost undoes it.
	HidePost(id string)
	UnhidePost(id string)
	// TombstonePost records a confirmed delete.
	TombstonePost(id string)
}

// Toggles runs the social mutations on posts and follow edges.
type Toggles struct {
	coord   *Coordinator
	backend Backend
	bus     *eventbus.Bus
	follows *FollowState
}

// NewToggles wires the toggle operations.
func NewToggles(coord *Coordinator, backend Backend, bus *eventbus.Bus, follows *FollowState) *Toggles {
	return &Toggles{coord: coord, backend: backend, bus: bus, follows: follows}
}

// Follows exposes the shared follow state.
func (t *Toggles) Follows() *FollowState {
	return t.follows
}

// ObserveFollow applies a follow state fetched from the server. The fetch
// supersedes local state and hints, and views are told through the bus,
// unless a follow toggle for target is awaiting its response: that
// response is authoritative for the edge. It reports whether the state
// changed.
func (t *Toggles) ObserveFollow(targetID string, following bool) bool {
	if t.coord.InFlight(followKey(targetID)) {
		return false
	}
	if !t.follows.Observe(targetID, following) {
		return false
	}
	t.bus.Publish(eventbus.FollowChanged{TargetID: targetID, Following: following})
	return true
}

// FollowPending reports whether a follow toggle for target is in flight.
func (t *Toggles) FollowPending(targetID string) bool {
	return t.coord.InFlight(followKey(targetID))
}

func followKey(targetID string) string { return "follow:" + targetID }

// ToggleFollow flips the viewer's follow edge to targetID and broadcasts it.
func (t *Toggles) ToggleFollow(ctx context.Context, targetID string) error {
	if targetID == "" {
		return models.NewValidationError("follow target is required")
	}
	if targetID == t.coord.ViewerID() {
		return models.NewValidationError("cannot follow yourself")
	}

	delta := Flip(t.follows.Following(targetID))
	var result api.ToggleResult

	set := func(following bool) func() {
		return func() { t.follows.Set(targetID, following) }
	}
	publish := func(following bool) func() {
		return func() {
			t.bus.Publish(eventbus.FollowChanged{TargetID: targetID, Following: following})
		}
	}

	return t.coord.Run(ctx, Op{
		Name:       "follow",
		Key:        followKey(targetID),
		Class:      Soft,
		Apply:      set(delta.After),
		Revert:     set(delta.Before),
		Publish:    publish(delta.After),
		Compensate: publish(delta.Before),
		Call: func(ctx context.Context) error {
			var err error
			result, err = t.backend.SetFollow(ctx, targetID, delta.After)
			return err
		},
		Reconcile: func() {
			if t.follows.Following(targetID) == result.Active {
				return
			}
			t.follows.Set(targetID, result.Active)
			publish(result.Active)()
		},
	})
}

// ToggleLike flips the viewer's like on a post.
func (t *Toggles) ToggleLike(ctx context.Context, target PostTarget, postID string) error {
	return t.togglePost(ctx, "like", target, postID,
		func(p *models.Post) (*bool, *int) { return &p.Liked, &p.LikesCount },
		t.backend.SetPostLike)
}

// ToggleRepost flips the viewer's repost of a post.
func (t *Toggles) ToggleRepost(ctx context.Context, target PostTarget, postID string) error {
	return t.togglePost(ctx, "repost", target, postID,
		func(p *models.Post) (*bool, *int) { return &p.Reposted, &p.RepostsCount },
		t.backend.SetRepost)
}

func (t *Toggles) togglePost(
	ctx context.Context,
	name string,
	target PostTarget,
	postID string,
	fields func(*models.Post) (*bool, *int),
	call func(context.Context, string, bool) (api.ToggleResult, error),
) error {
	post := target.Post(postID)
	if post == nil {
		return models.NewNotFoundError("Post", postID)
	}

	flag, _ := fields(post)
	delta := Flip(*flag)
	var applied Toggle
	var result api.ToggleResult

	return t.coord.Run(ctx, Op{
		Name:  name,
		Key:   name + ":" + postID,
		Class: Soft,
		Apply: func() {
			if p := target.Post(postID); p != nil {
				applied = delta.ApplyTo(fields(p))
				target.Commit()
			}
		},
		Revert: func() {
			if p := target.Post(postID); p != nil {
				applied.Invert().ApplyTo(fields(p))
				target.Commit()
			}
		},
		Call: func(ctx context.Context) error {
			var err error
			result, err = call(ctx, postID, delta.After)
			return err
		},
		Reconcile: func() {
			if p := target.Post(postID); p != nil {
				flag, count := fields(p)
				*flag = result.Active
				*count = max(result.Count, 0)
				target.Commit()
			}
		},
	})
}

// SetJobStatus moves a job post to status and broadcasts the change.
func (t *Toggles) SetJobStatus(ctx context.Context, target PostTarget, postID string, status models.JobStatus) error {
	if status == "" || !status.Valid() {
		return models.NewValidationError("unknown job status " + string(status))
	}
	post := target.Post(postID)
	if post == nil {
		return models.NewNotFoundError("Post", postID)
	}
	before := post.JobStatus
	if before == status {
		return nil
	}
	var canonical models.Post

	set := func(s models.JobStatus) func() {
		return func() {
			if p := target.Post(postID); p != nil {
				p.JobStatus = s
				target.Commit()
			}
		}
	}
	publish := func(s models.JobStatus) func() {
		return func() {
			t.bus.Publish(eventbus.PostStatusChanged{PostID: postID, Status: s})
		}
	}

	return t.coord.Run(ctx, Op{
		Name:       "job-status",
		Key:        "job-status:" + postID,
		Class:      Soft,
		Apply:      set(status),
		Revert:     set(before),
		Publish:    publish(status),
		Compensate: publish(before),
		Call: func(ctx context.Context) error {
			var err error
			canonical, err = t.backend.SetJobStatus(ctx, postID, status)
			return err
		},
		Reconcile: func() {
			if canonical.JobStatus == "" || !canonical.JobStatus.Valid() || canonical.JobStatus == status {
				return
			}
			set(canonical.JobStatus)()
			publish(canonical.JobStatus)()
		},
	})
}

// DeletePost removes a post from list. The removal is optimistic and the
// post stays hidden from refetches while the request is in flight. It is
// tombstoned once the server confirms, and restored at its original index
// if the server refuses.
func (t *Toggles) DeletePost(ctx context.Context, list PostList, postID string) error {
	if list.Post(postID) == nil {
		return models.NewNotFoundError("Post", postID)
	}

	var removed models.Post
	index := -1

	return t.coord.Run(ctx, Op{
		Name:  "delete-post",
		Key:   "delete-post:" + postID,
		Class: Hard,
		Apply: func() {
			list.HidePost(postID)
			if p, i, ok := list.RemovePost(postID); ok {
				removed, index = p, i
			}
			list.Commit()
		},
		Revert: func() {
			list.UnhidePost(postID)
			if index >= 0 {
				list.RestorePost(removed, index)
			}
			list.Commit()
		},
		Call: func(ctx context.Context) error {
			return t.backend.DeletePost(ctx, postID)
		},
		Reconcile: func() {
			list.TombstonePost(postID)
			list.Commit()
		},
	})
}
