package mutation

import (
	"context"
	"errors"
	"testing"

	"feedsync/internal/api"
	"feedsync/internal/dispatch"
	"feedsync/internal/eventbus"
	"feedsync/internal/featureflags"
	"feedsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errServer = errors.New("server unavailable")

type harness struct {
	manual   *dispatch.Manual
	bus      *eventbus.Bus
	follows  *FollowState
	hints    hintStub
	toggles  *Toggles
	backend  *backendStub
	notified []string
	coord    *Coordinator
}

func newHarness(t *testing.T, flags string, creds credsStub) *harness {
	t.Helper()
	h := &harness{
		manual:  dispatch.NewManual(),
		bus:     eventbus.New(),
		hints:   hintStub{},
		backend: echoBackend(),
	}
	h.follows = NewFollowState(h.hints)
	h.coord = NewCoordinator(h.manual, creds, NotifierFunc(func(op string, _ error) {
		h.notified = append(h.notified, op)
	}), featureflags.NewManager(flags))
	h.toggles = NewToggles(h.coord, h.backend, h.bus, h.follows)
	return h
}

func guarded(t *testing.T) *harness {
	return newHarness(t, "toggle_sequence_guard=on", credsStub{viewer: "u1"})
}

func unguarded(t *testing.T) *harness {
	return newHarness(t, "toggle_sequence_guard=off", credsStub{viewer: "u1"})
}

func (h *harness) recordFollows(t *testing.T) *[]bool {
	t.Helper()
	var seen []bool
	_, err := eventbus.On(h.bus, func(e eventbus.FollowChanged) { seen = append(seen, e.Following) })
	require.NoError(t, err)
	return &seen
}

func TestToggle_ApplyAndInvert(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		flag, count := false, 10
		applied := Flip(flag).ApplyTo(&flag, &count)
		assert.True(t, flag)
		assert.Equal(t, 11, count)
		applied.Invert().ApplyTo(&flag, &count)
		assert.False(t, flag)
		assert.Equal(t, 10, count)
	})

	t.Run("counter floor is inverted exactly", func(t *testing.T) {
		t.Parallel()
		flag, count := true, 0
		applied := Flip(flag).ApplyTo(&flag, &count)
		assert.False(t, flag)
		assert.Equal(t, 0, count)
		assert.Equal(t, 0, applied.CounterDelta)
		applied.Invert().ApplyTo(&flag, &count)
		assert.True(t, flag)
		assert.Equal(t, 0, count)
	})
}

func TestCoordinator_CredentialGuard(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", credsStub{viewer: "u1", err: models.NewUnauthorizedError("missing credential")})
	list := newPostList(models.Post{ID: "p1", LikesCount: 3})

	err := h.toggles.ToggleLike(context.Background(), list, "p1")
	require.Error(t, err)
	assert.True(t, models.IsUnauthorized(err))
	assert.Equal(t, 3, list.posts[0].LikesCount)
	assert.False(t, list.posts[0].Liked)
	assert.Zero(t, list.commits)
	assert.Zero(t, h.manual.Pending())
}

func TestToggleLike(t *testing.T) {
	t.Parallel()

	t.Run("twice returns to the original state", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		likes := 10
		h.backend.setPostLikeFn = func(_ context.Context, _ string, on bool) (api.ToggleResult, error) {
			if on {
				likes++
			} else {
				likes--
			}
			return api.ToggleResult{Active: on, Count: likes}, nil
		}
		list := newPostList(models.Post{ID: "p1", LikesCount: 10})

		require.NoError(t, h.toggles.ToggleLike(context.Background(), list, "p1"))
		assert.True(t, list.posts[0].Liked)
		assert.Equal(t, 11, list.posts[0].LikesCount)
		h.manual.Flush()

		require.NoError(t, h.toggles.ToggleLike(context.Background(), list, "p1"))
		h.manual.Flush()
		assert.False(t, list.posts[0].Liked)
		assert.Equal(t, 10, list.posts[0].LikesCount)
	})

	t.Run("failure rolls back silently", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.setPostLikeFn = func(context.Context, string, bool) (api.ToggleResult, error) {
			return api.ToggleResult{}, errServer
		}
		list := newPostList(models.Post{ID: "p1", LikesCount: 10})

		require.NoError(t, h.toggles.ToggleLike(context.Background(), list, "p1"))
		assert.Equal(t, 11, list.posts[0].LikesCount)
		h.manual.Flush()
		assert.False(t, list.posts[0].Liked)
		assert.Equal(t, 10, list.posts[0].LikesCount)
		assert.Empty(t, h.notified)
	})

	t.Run("server count wins on success", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.setPostLikeFn = func(context.Context, string, bool) (api.ToggleResult, error) {
			return api.ToggleResult{Active: true, Count: 42}, nil
		}
		list := newPostList(models.Post{ID: "p1", LikesCount: 10})

		require.NoError(t, h.toggles.ToggleLike(context.Background(), list, "p1"))
		h.manual.Flush()
		assert.Equal(t, 42, list.posts[0].LikesCount)
	})

	t.Run("missing post", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		err := h.toggles.ToggleLike(context.Background(), newPostList(), "p1")
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("post gone before response", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.setPostLikeFn = func(context.Context, string, bool) (api.ToggleResult, error) {
			return api.ToggleResult{}, errServer
		}
		list := newPostList(models.Post{ID: "p1"})

		require.NoError(t, h.toggles.ToggleLike(context.Background(), list, "p1"))
		list.posts = nil
		assert.NotPanics(t, h.manual.Flush)
	})
}

func TestToggleRepost_Rollback(t *testing.T) {
	t.Parallel()

	h := guarded(t)
	h.backend.setRepostFn = func(context.Context, string, bool) (api.ToggleResult, error) {
		return api.ToggleResult{}, errServer
	}
	list := newPostList(models.Post{ID: "p1", Reposted: true, RepostsCount: 1})

	require.NoError(t, h.toggles.ToggleRepost(context.Background(), list, "p1"))
	assert.False(t, list.posts[0].Reposted)
	assert.Equal(t, 0, list.posts[0].RepostsCount)
	h.manual.Flush()
	assert.True(t, list.posts[0].Reposted)
	assert.Equal(t, 1, list.posts[0].RepostsCount)
}

func TestToggleFollow(t *testing.T) {
	t.Parallel()

	t.Run("applies and broadcasts before the response", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		seen := h.recordFollows(t)

		require.NoError(t, h.toggles.ToggleFollow(context.Background(), "u2"))
		assert.True(t, h.follows.Following("u2"))
		assert.Equal(t, []bool{true}, *seen)
		assert.Equal(t, 1, h.manual.Pending())

		h.manual.Flush()
		assert.True(t, h.follows.Following("u2"))
		assert.Equal(t, []bool{true}, *seen)
	})

	t.Run("failure compensates", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.setFollowFn = func(context.Context, string, bool) (api.ToggleResult, error) {
			return api.ToggleResult{}, errServer
		}
		seen := h.recordFollows(t)

		require.NoError(t, h.toggles.ToggleFollow(context.Background(), "u2"))
		h.manual.Flush()
		assert.False(t, h.follows.Following("u2"))
		assert.Equal(t, []bool{true, false}, *seen)
		assert.Empty(t, h.notified)
	})

	t.Run("self follow rejected", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		err := h.toggles.ToggleFollow(context.Background(), "u1")
		assert.True(t, models.IsValidation(err))
		assert.Zero(t, h.manual.Pending())
	})

	t.Run("hint store mirrors state", func(t *testing.T) {
		t.Parallel()
		hints := hintStub{}
		h := guarded(t)
		h.follows = NewFollowState(hints)
		h.toggles = NewToggles(h.coord, h.backend, h.bus, h.follows)

		require.NoError(t, h.toggles.ToggleFollow(context.Background(), "u2"))
		assert.True(t, hints["u2"])
	})
}

func TestToggleFollow_ResponseRace(t *testing.T) {
	t.Parallel()

	race := func(t *testing.T, h *harness) {
		ctx := context.Background()
		// follow, then unfollow before the first response; the responses
		// arrive newest first.
		require.NoError(t, h.toggles.ToggleFollow(ctx, "u2"))
		require.NoError(t, h.toggles.ToggleFollow(ctx, "u2"))
		require.Equal(t, 2, h.manual.Pending())
		h.manual.Resolve(1)
		h.manual.Resolve(0)
	}

	t.Run("sequence guard keeps the latest intent", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		race(t, h)
		assert.False(t, h.follows.Following("u2"))
	})

	t.Run("without the guard the last response wins", func(t *testing.T) {
		t.Parallel()
		h := unguarded(t)
		race(t, h)
		assert.True(t, h.follows.Following("u2"))
	})

	t.Run("stale failure is discarded", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		calls := 0
		h.backend.setFollowFn = func(_ context.Context, _ string, on bool) (api.ToggleResult, error) {
			calls++
			if on {
				return api.ToggleResult{}, errServer
			}
			return api.ToggleResult{Active: false}, nil
		}
		seen := h.recordFollows(t)
		race(t, h)
		assert.Equal(t, 2, calls)
		assert.False(t, h.follows.Following("u2"))
		assert.Equal(t, []bool{true, false}, *seen)
	})
}

func TestSetJobStatus(t *testing.T) {
	t.Parallel()

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		list := newPostList(models.Post{ID: "p1", JobStatus: models.JobStatusOpen})
		err := h.toggles.SetJobStatus(context.Background(), list, "p1", models.JobStatus("closed"))
		assert.True(t, models.IsValidation(err))
		assert.Equal(t, models.JobStatusOpen, list.posts[0].JobStatus)
	})

	t.Run("broadcast and compensate", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.setJobStatusFn = func(context.Context, string, models.JobStatus) (models.Post, error) {
			return models.Post{}, errServer
		}
		var seen []models.JobStatus
		_, err := eventbus.On(h.bus, func(e eventbus.PostStatusChanged) { seen = append(seen, e.Status) })
		require.NoError(t, err)
		list := newPostList(models.Post{ID: "p1", JobStatus: models.JobStatusOpen})

		require.NoError(t, h.toggles.SetJobStatus(context.Background(), list, "p1", models.JobStatusHired))
		assert.Equal(t, models.JobStatusHired, list.posts[0].JobStatus)
		h.manual.Flush()
		assert.Equal(t, models.JobStatusOpen, list.posts[0].JobStatus)
		assert.Equal(t, []models.JobStatus{models.JobStatusHired, models.JobStatusOpen}, seen)
	})

	t.Run("unchanged status is a no-op", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		list := newPostList(models.Post{ID: "p1", JobStatus: models.JobStatusOpen})
		require.NoError(t, h.toggles.SetJobStatus(context.Background(), list, "p1", models.JobStatusOpen))
		assert.Zero(t, h.manual.Pending())
	})
}

func TestDeletePost(t *testing.T) {
	t.Parallel()

	posts := func() *postListStub {
		return newPostList(models.Post{ID: "p1"}, models.Post{ID: "p2"}, models.Post{ID: "p3"})
	}

	t.Run("confirmed delete tombstones", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		list := posts()

		require.NoError(t, h.toggles.DeletePost(context.Background(), list, "p2"))
		assert.Nil(t, list.Post("p2"))
		assert.True(t, list.hidden["p2"])
		assert.False(t, list.tombstones["p2"])
		h.manual.Flush()
		assert.True(t, list.tombstones["p2"])
		assert.False(t, list.hidden["p2"])
		assert.Empty(t, h.notified)
	})

	t.Run("failure restores at the original index and notifies", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.deletePostFn = func(context.Context, string) error { return errServer }
		list := posts()

		require.NoError(t, h.toggles.DeletePost(context.Background(), list, "p2"))
		h.manual.Flush()
		require.Len(t, list.posts, 3)
		assert.Equal(t, "p2", list.posts[1].ID)
		assert.False(t, list.tombstones["p2"])
		assert.False(t, list.hidden["p2"])
		assert.Equal(t, []string{"delete-post"}, h.notified)
	})

	t.Run("second submission while busy", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		list := posts()
		require.NoError(t, h.toggles.DeletePost(context.Background(), list, "p2"))
		list.posts = append(list.posts, models.Post{ID: "p2"})

		err := h.toggles.DeletePost(context.Background(), list, "p2")
		assert.True(t, models.IsBusy(err))
		assert.True(t, h.coord.Busy("delete-post:p2"))

		h.manual.Flush()
		assert.False(t, h.coord.Busy("delete-post:p2"))
	})
}

func TestFollowState(t *testing.T) {
	t.Parallel()

	hints := hintStub{"u3": true}
	f := NewFollowState(hints)

	following, known := f.Get("u3")
	assert.True(t, following)
	assert.True(t, known)

	assert.True(t, f.Observe("u3", false), "a fetch supersedes the hint")
	assert.False(t, f.Following("u3"))
	assert.False(t, hints["u3"])

	f.Set("u2", true)
	assert.False(t, f.Observe("u2", true))
	assert.True(t, f.Observe("u2", false), "a fetch supersedes an earlier toggle")
	assert.False(t, f.Following("u2"))

	f.Clear()
	_, known = f.Get("u2")
	assert.False(t, known)
}

func TestObserveFollow(t *testing.T) {
	t.Parallel()

	t.Run("broadcasts server state that differs", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		seen := h.recordFollows(t)

		assert.True(t, h.toggles.ObserveFollow("u2", true))
		assert.False(t, h.toggles.ObserveFollow("u2", true))
		assert.True(t, h.follows.Following("u2"))
		assert.Equal(t, []bool{true}, *seen)
	})

	t.Run("toggle in flight wins", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		require.NoError(t, h.toggles.ToggleFollow(context.Background(), "u2"))
		assert.True(t, h.toggles.FollowPending("u2"))
		seen := h.recordFollows(t)

		assert.False(t, h.toggles.ObserveFollow("u2", false))
		assert.True(t, h.follows.Following("u2"))
		assert.Empty(t, *seen)

		h.manual.Flush()
		assert.False(t, h.toggles.FollowPending("u2"))
		assert.True(t, h.toggles.ObserveFollow("u2", false))
	})
}

func TestCoordinator_ResetDropsEarlierCompletions(t *testing.T) {
	t.Parallel()

	t.Run("late success", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		require.NoError(t, h.toggles.ToggleFollow(context.Background(), "u2"))
		seen := h.recordFollows(t)

		h.coord.Reset()
		h.follows.Clear()
		for k := range h.hints {
			delete(h.hints, k)
		}
		assert.False(t, h.coord.InFlight("follow:u2"))

		h.manual.Flush()
		assert.False(t, h.follows.Following("u2"))
		assert.Empty(t, h.hints)
		assert.Empty(t, *seen)
	})

	t.Run("late failure", func(t *testing.T) {
		t.Parallel()
		h := guarded(t)
		h.backend.deletePostFn = func(context.Context, string) error { return errServer }
		list := newPostList(models.Post{ID: "p1"}, models.Post{ID: "p2"})
		require.NoError(t, h.toggles.DeletePost(context.Background(), list, "p2"))

		h.coord.Reset()
		assert.False(t, h.coord.Busy("delete-post:p2"))

		h.manual.Flush()
		assert.Len(t, list.posts, 1)
		assert.Empty(t, h.notified)
	})
}
