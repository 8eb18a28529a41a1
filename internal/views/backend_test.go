package views

import (
	"context"
	"fmt"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/pagination"
)

type viewerStub struct{}

func (viewerStub) Credential() (string, error) { return "token", nil }
func (viewerStub) ViewerID() string { return "me" }

// hintMap is an in-memory follow hint store.
type hintMap map[string]bool

func (h hintMap) FollowHint(id string) (bool, bool) {
	v, ok := h[id]
	return v, ok
}

func (h hintMap) SetFollowHint(id string, v bool) { h[id] = v }

// memBackend serves views and mutations from memory and counts calls.
type memBackend struct {
	profiles map[string]models.Profile
	posts    map[string][]models.Post
	comments map[string][]models.Comment
	follows  map[string]bool
	calls    map[string]int
	fail     map[string]error
}

func newMemBackend() *memBackend {
	return &memBackend{
		profiles: map[string]models.Profile{},
		posts:    map[string][]models.Post{},
		comments: map[string][]models.Comment{},
		follows:  map[string]bool{},
		calls:    map[string]int{},
		fail:     map[string]error{},
	}
}

func (b *memBackend) hit(op string) error {
	b.calls[op]++
	return b.fail[op]
}

func (b *memBackend) addPosts(userID string, n int, video bool) {
	for i := 0; i < n; i++ {
		p := models.Post{
			ID:        fmt.Sprintf("%s-p%d", userID, len(b.posts[userID])+1),
			Author:    models.UserSummary{ID: userID},
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Duration(len(b.posts[userID])) * time.Minute),
		}
		if video {
			p.Media = []models.Media{{Kind: models.MediaVideo, URL: "v.mp4"}}
		}
		b.posts[userID] = append(b.posts[userID], p)
	}
}

func (b *memBackend) post(id string) (*models.Post, bool) {
	for _, list := range b.posts {
		for i := range list {
			if list[i].ID == id {
				return &list[i], true
			}
		}
	}
	return nil, false
}

func (b *memBackend) FetchProfile(_ context.Context, userID string) (models.Profile, error) {
	if err := b.hit("profile"); err != nil {
		return models.Profile{}, err
	}
	p, ok := b.profiles[userID]
	if !ok {
		return models.Profile{}, models.NewNotFoundError("User", userID)
	}
	p.Following = b.follows[userID]
	return p, nil
}

func (b *memBackend) FetchPosts(_ context.Context, userID string, tab pagination.Tab, page, limit int) (api.PostPage, error) {
	if err := b.hit("posts:" + string(tab)); err != nil {
		return api.PostPage{}, err
	}
	var list []models.Post
	for _, p := range b.posts[userID] {
		if tab != pagination.TabVideos || p.IsVideo() {
			list = append(list, p)
		}
	}
	start := min((page-1)*limit, len(list))
	end := min(start+limit, len(list))
	return api.PostPage{Items: append([]models.Post(nil), list[start:end]...), HasMore: end < len(list)}, nil
}

func (b *memBackend) FetchPost(_ context.Context, postID string) (models.Post, error) {
	if err := b.hit("post"); err != nil {
		return models.Post{}, err
	}
	p, ok := b.post(postID)
	if !ok {
		return models.Post{}, models.NewNotFoundError("Post", postID)
	}
	return p.Clone(), nil
}

func (b *memBackend) FetchFollow(_ context.Context, targetID string) (api.ToggleResult, error) {
	if err := b.hit("follow:get"); err != nil {
		return api.ToggleResult{}, err
	}
	return api.ToggleResult{Active: b.follows[targetID]}, nil
}

func (b *memBackend) SetFollow(_ context.Context, targetID string, on bool) (api.ToggleResult, error) {
	if err := b.hit("follow"); err != nil {
		return api.ToggleResult{}, err
	}
	b.follows[targetID] = on
	return api.ToggleResult{Active: on}, nil
}

func (b *memBackend) SetPostLike(_ context.Context, postID string, on bool) (api.ToggleResult, error) {
	if err := b.hit("like"); err != nil {
		return api.ToggleResult{}, err
	}
	p, ok := b.post(postID)
	if !ok {
		return api.ToggleResult{}, models.NewNotFoundError("Post", postID)
	}
	if p.Liked != on {
		p.Liked = on
		p.LikesCount += map[bool]int{true: 1, false: -1}[on]
	}
	return api.ToggleResult{Active: p.Liked, Count: p.LikesCount}, nil
}

func (b *memBackend) SetRepost(_ context.Context, postID string, on bool) (api.ToggleResult, error) {
	if err := b.hit("repost"); err != nil {
		return api.ToggleResult{}, err
	}
	p, ok := b.post(postID)
	if !ok {
		return api.ToggleResult{}, models.NewNotFoundError("Post", postID)
	}
	p.Reposted = on
	return api.ToggleResult{Active: on, Count: p.RepostsCount}, nil
}

func (b *memBackend) SetJobStatus(_ context.Context, postID string, status models.JobStatus) (models.Post, error) {
	if err := b.hit("job-status"); err != nil {
		return models.Post{}, err
	}
	p, ok := b.post(postID)
	if !ok {
		return models.Post{}, models.NewNotFoundError("Post", postID)
	}
	p.JobStatus = status
	return p.Clone(), nil
}

func (b *memBackend) DeletePost(_ context.Context, postID string) error {
	return b.hit("delete-post")
}

func (b *memBackend) ListComments(_ context.Context, postID string) ([]models.Comment, error) {
	if err := b.hit("comments"); err != nil {
		return nil, err
	}
	return append([]models.Comment(nil), b.comments[postID]...), nil
}

func (b *memBackend) CreateComment(_ context.Context, postID, text string) (models.Comment, error) {
	if err := b.hit("comment"); err != nil {
		return models.Comment{}, err
	}
	return models.Comment{ID: fmt.Sprintf("c%d", b.calls["comment"]), Text: text}, nil
}

func (b *memBackend) CreateReply(_ context.Context, parentID, text string) (models.Reply, error) {
	if err := b.hit("reply"); err != nil {
		return models.Reply{}, err
	}
	return models.Reply{ID: fmt.Sprintf("r%d", b.calls["reply"]), Text: text}, nil
}

func (b *memBackend) DeleteComment(context.Context, string) error { return b.hit("comment-delete") }

func (b *memBackend) DeleteReply(context.Context, string, string) error {
	return b.hit("reply-delete")
}

func (b *memBackend) SetCommentLike(_ context.Context, _, _ string, on bool) (api.ToggleResult, error) {
	if err := b.hit("comment-like"); err != nil {
		return api.ToggleResult{}, err
	}
	return api.ToggleResult{Active: on, Count: 1}, nil
}
