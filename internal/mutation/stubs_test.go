package mutation

import (
	"context"

	"feedsync/internal/api"
	"feedsync/internal/models"
)

type credsStub struct {
	viewer string
	err    error
}

func (c credsStub) Credential() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "token", nil
}

func (c credsStub) ViewerID() string { return c.viewer }

// backendStub is a stub for Backend.
type backendStub struct {
	setFollowFn    func(context.Context, string, bool) (api.ToggleResult, error)
	setPostLikeFn  func(context.Context, string, bool) (api.ToggleResult, error)
	setRepostFn    func(context.Context, string, bool) (api.ToggleResult, error)
	setJobStatusFn func(context.Context, string, models.JobStatus) (models.Post, error)
	deletePostFn   func(context.Context, string) error
}

func (s *backendStub) SetFollow(ctx context.Context, id string, on bool) (api.ToggleResult, error) {
	return s.setFollowFn(ctx, id, on)
}
func (s *backendStub) SetPostLike(ctx context.Context, id string, on bool) (api.ToggleResult, error) {
	return s.setPostLikeFn(ctx, id, on)
}
func (s *backendStub) SetRepost(ctx context.Context, id string, on bool) (api.ToggleResult, error) {
	return s.setRepostFn(ctx, id, on)
}
func (s *backendStub) SetJobStatus(ctx context.Context, id string, st models.JobStatus) (models.Post, error) {
	return s.setJobStatusFn(ctx, id, st)
}
func (s *backendStub) DeletePost(ctx context.Context, id string) error {
	return s.deletePostFn(ctx, id)
}

// echoBackend answers every toggle with the requested state.
func echoBackend() *backendStub {
	echo := func(_ context.Context, _ string, on bool) (api.ToggleResult, error) {
		return api.ToggleResult{Active: on}, nil
	}
	return &backendStub{
		setFollowFn:   echo,
		setPostLikeFn: echo,
		setRepostFn:   echo,
		setJobStatusFn: func(_ context.Context, id string, st models.JobStatus) (models.Post, error) {
			return models.Post{ID: id, JobStatus: st}, nil
		},
		deletePostFn: func(context.Context, string) error { return nil },
	}
}

type postListStub struct {
	posts      []models.Post
	tombstones map[string]bool
	hidden     map[string]bool
	commits    int
}

func newPostList(posts ...models.Post) *postListStub {
	return &postListStub{posts: posts, tombstones: make(map[string]bool), hidden: make(map[string]bool)}
}

func (l *postListStub) Post(id string) *models.Post {
	for i := range l.posts {
		if l.posts[i].ID == id {
			return &l.posts[i]
		}
	}
	return nil
}

func (l *postListStub) Commit() { l.commits++ }

func (l *postListStub) RemovePost(id string) (models.Post, int, bool) {
	for i, p := range l.posts {
		if p.ID == id {
			l.posts = append(l.posts[:i], l.posts[i+1:]...)
			return p, i, true
		}
	}
	return models.Post{}, -1, false
}

func (l *postListStub) RestorePost(p models.Post, index int) {
	index = min(index, len(l.posts))
	l.posts = append(l.posts[:index], append([]models.Post{p}, l.posts[index:]...)...)
}

func (l *postListStub) HidePost(id string) { l.hidden[id] = true }

func (l *postListStub) UnhidePost(id string) { delete(l.hidden, id) }

func (l *postListStub) TombstonePost(id string) {
	delete(l.hidden, id)
	l.tombstones[id] = true
}

type hintStub map[string]bool

func (h hintStub) FollowHint(id string) (bool, bool) {
	v, ok := h[id]
	return v, ok
}

func (h hintStub) SetFollowHint(id string, v bool) { h[id] = v }
