package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const world = `
users:
  - id: alice
    username: alice
    password: secret
    display_name: Alice
  - id: bob
    username: bob
    display_name: Bob
posts:
  - id: a1
    author: alice
    content: first
    age_hours: 3
  - id: a2
    author: alice
    content: clip
    video: https://example.com/v.mp4
    age_hours: 2
  - id: a3
    author: alice
    content: hiring
    job_status: open
    age_hours: 1
follows:
  - follower: bob
    target: alice
`

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t   *testing.T
	srv *Server
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	observability.SetGlobalLogger(nil)
	f := &fixture{t: t, now: epoch}
	store := NewStore(func() time.Time { return f.now })
	fx, err := DecodeFixtures(strings.NewReader(world))
	require.NoError(t, err)
	require.NoError(t, fx.Apply(store))
	f.srv = New(Config{Secret: "test-secret"}, store)
	return f
}

func (f *fixture) token(username, password string) string {
	f.t.Helper()
	res := f.do(http.MethodPost, "/api/auth/login", "", api.LoginRequest{Username: username, Password: password})
	require.Equal(f.t, http.StatusOK, res.StatusCode)
	var out api.LoginResponse
	decode(f.t, res, &out)
	return out.Token
}

func (f *fixture) do(method, path, token string, body any) *http.Response {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := f.srv.App().Test(req, -1)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPost, "/api/auth/login", "", api.LoginRequest{Username: "Alice", Password: "secret"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out api.LoginResponse
	decode(t, res, &out)
	assert.Equal(t, "alice", out.User.ID)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(out.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return epoch }))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])

	res = f.do(http.MethodPost, "/api/auth/login", "", api.LoginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	assert.NotEmpty(t, f.token("bob", DefaultPassword))
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	valid := f.token("alice", "secret")

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "Happy Path", header: "Bearer " + valid, status: http.StatusOK},
		{name: "Missing Header", status: http.StatusUnauthorized},
		{name: "Invalid Format", header: "Basic dXNlcjpwYXNz", status: http.StatusUnauthorized},
		{name: "Malformed Token", header: "Bearer malformed.token.here", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res, err := f.srv.App().Test(req, -1)
			require.NoError(t, err)
			defer func() { _ = res.Body.Close() }()
			assert.Equal(t, tt.status, res.StatusCode)
		})
	}

	t.Run("Expired Token", func(t *testing.T) {
		f.now = epoch.Add(2 * time.Hour)
		defer func() { f.now = epoch }()
		res := f.do(http.MethodGet, "/api/users/alice", valid, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestProfileCounts(t *testing.T) {
	f := newFixture(t)
	bob := f.token("bob", DefaultPassword)

	var p models.Profile
	decode(t, f.do(http.MethodGet, "/api/users/alice", bob, nil), &p)
	assert.Equal(t, 1, p.FollowersCount)
	assert.Equal(t, 3, p.PostsCount)
	assert.True(t, p.Following)

	res := f.do(http.MethodGet, "/api/users/nobody", bob, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUserPostsPagination(t *testing.T) {
	f := newFixture(t)
	bob := f.token("bob", DefaultPassword)

	var page api.PostPage
	decode(t, f.do(http.MethodGet, "/api/users/alice/posts?tab=posts&page=1&limit=2", bob, nil), &page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a3", page.Items[0].ID)
	assert.True(t, page.HasMore)

	decode(t, f.do(http.MethodGet, "/api/users/alice/posts?tab=posts&page=2&limit=2", bob, nil), &page)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	decode(t, f.do(http.MethodGet, "/api/users/alice/posts?tab=videos", bob, nil), &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a2", page.Items[0].ID)

	decode(t, f.do(http.MethodGet, "/api/users/alice/posts?tab=reposts", bob, nil), &page)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	res := f.do(http.MethodGet, "/api/users/alice/posts?tab=drafts", bob, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestLikeIsPerViewer(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.token("alice", "secret"), f.token("bob", DefaultPassword)

	var r api.ToggleResult
	decode(t, f.do(http.MethodPost, "/api/posts/a1/like", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: true, Count: 1}, r)
	decode(t, f.do(http.MethodPost, "/api/posts/a1/like", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: true, Count: 1}, r)

	var p models.Post
	decode(t, f.do(http.MethodGet, "/api/posts/a1", alice, nil), &p)
	assert.False(t, p.Liked)
	assert.Equal(t, 1, p.LikesCount)

	decode(t, f.do(http.MethodDelete, "/api/posts/a1/like", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: false, Count: 0}, r)
}

func TestRepostFlattensAndTracksTab(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.token("alice", "secret"), f.token("bob", DefaultPassword)

	var r api.ToggleResult
	decode(t, f.do(http.MethodPost, "/api/posts/a1/repost", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: true, Count: 1}, r)

	var page api.PostPage
	decode(t, f.do(http.MethodGet, "/api/users/bob/posts?tab=reposts", alice, nil), &page)
	require.Len(t, page.Items, 1)
	wrapper := page.Items[0]
	require.NotNil(t, wrapper.OriginalPost)
	assert.Equal(t, "a1", wrapper.OriginalPost.ID)

	decode(t, f.do(http.MethodPost, "/api/posts/"+wrapper.ID+"/repost", alice, nil), &r)
	assert.Equal(t, 2, r.Count)

	decode(t, f.do(http.MethodGet, "/api/users/alice/posts?tab=reposts", alice, nil), &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].RepostDepth())

	decode(t, f.do(http.MethodDelete, "/api/posts/a1/repost", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: false, Count: 1}, r)
	decode(t, f.do(http.MethodGet, "/api/users/bob/posts?tab=reposts", alice, nil), &page)
	assert.Empty(t, page.Items)
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.token("alice", "secret"), f.token("bob", DefaultPassword)

	var p models.Post
	res := f.do(http.MethodPut, "/api/posts/a3/status", alice, api.StatusBody{Status: models.JobStatusHired})
	require.Equal(t, http.StatusOK, res.StatusCode)
	decode(t, res, &p)
	assert.Equal(t, models.JobStatusHired, p.JobStatus)

	res = f.do(http.MethodPut, "/api/posts/a3/status", alice, api.StatusBody{Status: "closed"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res = f.do(http.MethodPut, "/api/posts/a3/status", bob, api.StatusBody{Status: models.JobStatusOpen})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestCommentsAndReplies(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.token("alice", "secret"), f.token("bob", DefaultPassword)

	var first, second models.Comment
	decode(t, f.do(http.MethodPost, "/api/posts/a1/comments", bob, api.TextBody{Text: "one"}), &first)
	f.now = f.now.Add(time.Minute)
	decode(t, f.do(http.MethodPost, "/api/posts/a1/comments", alice, api.TextBody{Text: "two"}), &second)

	var reply models.Reply
	res := f.do(http.MethodPost, "/api/comments/"+first.ID+"/replies", alice, api.TextBody{Text: "re"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	decode(t, res, &reply)

	var list []models.Comment
	decode(t, f.do(http.MethodGet, "/api/posts/a1/comments", bob, nil), &list)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 1, list[1].RepliesCount)
	assert.Equal(t, reply.ID, list[1].Replies[0].ID)

	var p models.Post
	decode(t, f.do(http.MethodGet, "/api/posts/a1", bob, nil), &p)
	assert.Equal(t, 2, p.CommentsCount)

	var r api.ToggleResult
	decode(t, f.do(http.MethodPost, "/api/comments/"+first.ID+"/replies/"+reply.ID+"/like", bob, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: true, Count: 1}, r)

	res = f.do(http.MethodPost, "/api/comments/missing/replies", bob, api.TextBody{Text: "x"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res = f.do(http.MethodPost, "/api/posts/a1/comments", bob, api.TextBody{Text: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res = f.do(http.MethodDelete, "/api/comments/"+first.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = f.do(http.MethodDelete, "/api/comments/"+first.ID+"/replies/"+reply.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = f.do(http.MethodDelete, "/api/comments/"+first.ID, bob, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	decode(t, f.do(http.MethodGet, "/api/posts/a1", bob, nil), &p)
	assert.Equal(t, 1, p.CommentsCount)
}

func TestFollow(t *testing.T) {
	f := newFixture(t)
	alice := f.token("alice", "secret")

	var r api.ToggleResult
	decode(t, f.do(http.MethodGet, "/api/users/bob/follow", alice, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: false, Count: 0}, r)
	decode(t, f.do(http.MethodPost, "/api/users/bob/follow", alice, nil), &r)
	assert.Equal(t, api.ToggleResult{Active: true, Count: 1}, r)

	res := f.do(http.MethodPost, "/api/users/alice/follow", alice, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.token("alice", "secret"), f.token("bob", DefaultPassword)

	res := f.do(http.MethodDelete, "/api/posts/a1", bob, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = f.do(http.MethodDelete, "/api/posts/a1", alice, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = f.do(http.MethodGet, "/api/posts/a1", bob, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFailNext(t *testing.T) {
	f := newFixture(t)
	bob := f.token("bob", DefaultPassword)
	f.srv.FailNext(http.MethodPost, "/posts/a1/like", http.StatusServiceUnavailable, 2)

	for i := 0; i < 2; i++ {
		res := f.do(http.MethodPost, "/api/posts/a1/like", bob, nil)
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	}
	res := f.do(http.MethodPost, "/api/posts/a1/like", bob, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = f.do(http.MethodGet, "/api/posts/a1", bob, nil)
	var p models.Post
	decode(t, res, &p)
	assert.Equal(t, 1, p.LikesCount)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	res := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res = f.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	observability.SetGlobalLogger(nil)
	srv := New(Config{Metrics: true}, NewStore(nil))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
