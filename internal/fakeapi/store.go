package fakeapi

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	summary      models.UserSummary
	username     string
	passwordHash []byte
	bio          string
}

type set map[string]bool

func (s set) toggle(id string, on bool) {
	if on {
		s[id] = true
	} else {
		delete(s, id)
	}
}

// Store is the in-memory state of the fake backend.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int

	accounts   map[string]*account
	byUsername map[string]string
	posts      map[string]*models.Post
	timeline   map[string][]string // author id -> post ids, newest first
	comments   map[string][]*models.Comment
	likes      map[string]set // post id -> user ids
	reposts    map[string]set // original post id -> user ids
	repostOf   map[string]map[string]string
	follows    map[string]set // follower id -> target ids
	reactions  map[string]set // comment or reply id -> user ids
}

// NewStore returns an empty store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:        now,
		accounts:   make(map[string]*account),
		byUsername: make(map[string]string),
		posts:      make(map[string]*models.Post),
		timeline:   make(map[string][]string),
		comments:   make(map[string][]*models.Comment),
		likes:      make(map[string]set),
		reposts:    make(map[string]set),
		repostOf:   make(map[string]map[string]string),
		follows:    make(map[string]set),
		reactions:  make(map[string]set),
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func bucket(m map[string]set, key string) set {
	b, ok := m[key]
	if !ok {
		b = make(set)
		m[key] = b
	}
	return b
}

// AddUser registers an account. The password is stored as a bcrypt hash.
func (s *Store) AddUser(u models.UserSummary, username, password, bio string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID("u")
	}
	if u.DisplayName == "" {
		u.DisplayName = username
	}
	s.accounts[u.ID] = &account{summary: u, username: strings.ToLower(username), passwordHash: hash, bio: bio}
	s.byUsername[strings.ToLower(username)] = u.ID
	return nil
}

// AddPost stores a post authored by p.Author.ID and returns its id.
func (s *Store) AddPost(p models.Post) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[p.Author.ID]
	if !ok {
		return "", models.NewNotFoundError("User", p.Author.ID)
	}
	if p.ID == "" {
		p.ID = s.nextID("p")
	}
	if _, dup := s.posts[p.ID]; dup {
		return "", models.NewValidationError("duplicate post id " + p.ID)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.Author = acc.summary
	s.insertPost(&p)
	return p.ID, nil
}

func (s *Store) insertPost(p *models.Post) {
	s.posts[p.ID] = p
	ids := append(s.timeline[p.Author.ID], p.ID)
	slices.SortStableFunc(ids, func(a, b string) int {
		return s.posts[b].CreatedAt.Compare(s.posts[a].CreatedAt)
	})
	s.timeline[p.Author.ID] = ids
}

// Follow records follower -> target.
func (s *Store) Follow(followerID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket(s.follows, followerID).toggle(targetID, true)
}

// Authenticate checks a username and password.
func (s *Store) Authenticate(username, password string) (models.UserSummary, bool) {
	s.mu.Lock()
	id, ok := s.byUsername[strings.ToLower(username)]
	var acc *account
	if ok {
		acc = s.accounts[id]
	}
	s.mu.Unlock()
	if acc == nil {
		return models.UserSummary{}, false
	}
	if bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return models.UserSummary{}, false
	}
	return acc.summary, true
}

// Users returns every account summary ordered by id.
func (s *Store) Users() []models.UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.MapToSlice(s.accounts, func(_ string, a *account) models.UserSummary { return a.summary })
	slices.SortFunc(out, func(a, b models.UserSummary) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Profile returns userID's profile as seen by viewerID.
func (s *Store) Profile(viewerID, userID string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return models.Profile{}, models.NewNotFoundError("User", userID)
	}
	return models.Profile{
		User:           acc.summary,
		Bio:            acc.bio,
		FollowersCount: s.followers(userID),
		FollowingCount: len(s.follows[userID]),
		PostsCount:     len(s.authored(userID, pagination.TabPosts)),
		Following:      s.follows[viewerID][userID],
	}, nil
}

func (s *Store) followers(userID string) int {
	n := 0
	for _, targets := range s.follows {
		if targets[userID] {
			n++
		}
	}
	return n
}

func (s *Store) authored(userID string, tab pagination.Tab) []*models.Post {
	var out []*models.Post
	for _, id := range s.timeline[userID] {
		p := s.posts[id]
		switch tab {
		case pagination.TabReposts:
			if p.OriginalPost != nil {
				out = append(out, p)
			}
		case pagination.TabVideos:
			if p.OriginalPost == nil && p.IsVideo() {
				out = append(out, p)
			}
		default:
			if p.OriginalPost == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// Page returns one page of a profile tab.
func (s *Store) Page(viewerID, userID string, tab pagination.Tab, page, limit int) ([]models.Post, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; !ok {
		return nil, false, models.NewNotFoundError("User", userID)
	}
	all := s.authored(userID, tab)
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	items := lo.Map(all[start:end], func(p *models.Post, _ int) models.Post { return s.render(viewerID, p) })
	return items, end < len(all), nil
}

// Post returns one post as seen by viewerID.
func (s *Store) Post(viewerID, postID string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return models.Post{}, models.NewNotFoundError("Post", postID)
	}
	return s.render(viewerID, p), nil
}

func (s *Store) render(viewerID string, p *models.Post) models.Post {
	out := p.Clone()
	out.LikesCount = len(s.likes[p.ID])
	out.Liked = s.likes[p.ID][viewerID]
	out.CommentsCount = len(s.comments[p.ID])
	out.RepostsCount = len(s.reposts[p.ID])
	out.Reposted = s.reposts[p.ID][viewerID]
	if p.OriginalPost != nil {
		if orig, ok := s.posts[p.OriginalPost.ID]; ok {
			o := s.render(viewerID, orig)
			out.OriginalPost = &o
		}
	}
	return out
}

// DeletePost removes a post owned by viewerID.
func (s *Store) DeletePost(viewerID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return models.NewNotFoundError("Post", postID)
	}
	if p.Author.ID != viewerID {
		return models.NewUnauthorizedError("only the author can delete a post")
	}
	s.removePost(p)
	return nil
}

func (s *Store) removePost(p *models.Post) {
	delete(s.posts, p.ID)
	delete(s.comments, p.ID)
	delete(s.likes, p.ID)
	s.timeline[p.Author.ID] = lo.Without(s.timeline[p.Author.ID], p.ID)
	if p.OriginalPost != nil {
		delete(s.reposts[p.OriginalPost.ID], p.Author.ID)
		delete(s.repostOf[p.OriginalPost.ID], p.Author.ID)
	}
}

// SetLike likes or unlikes a post.
func (s *Store) SetLike(viewerID, postID string, on bool) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return false, 0, models.NewNotFoundError("Post", postID)
	}
	b := bucket(s.likes, postID)
	b.toggle(viewerID, on)
	return b[viewerID], len(b), nil
}

// SetRepost creates or removes the viewer's repost wrapper of a post.
// Reposting a repost targets its original.
func (s *Store) SetRepost(viewerID, postID string, on bool) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return false, 0, models.NewNotFoundError("Post", postID)
	}
	if p.OriginalPost != nil {
		if p, ok = s.posts[p.OriginalPost.ID]; !ok {
			return false, 0, models.NewNotFoundError("Post", postID)
		}
	}
	viewer, ok := s.accounts[viewerID]
	if !ok {
		return false, 0, models.NewUnauthorizedError("unknown viewer")
	}

	wrappers := s.repostOf[p.ID]
	if wrappers == nil {
		wrappers = make(map[string]string)
		s.repostOf[p.ID] = wrappers
	}
	switch existing, has := wrappers[viewerID]; {
	case on && !has:
		repost := models.NewRepost(s.nextID("p"), viewer.summary, *p, s.now())
		s.insertPost(&repost)
		wrappers[viewerID] = repost.ID
	case !on && has:
		if w, ok := s.posts[existing]; ok {
			delete(s.posts, w.ID)
			s.timeline[viewerID] = lo.Without(s.timeline[viewerID], w.ID)
		}
		delete(wrappers, viewerID)
	}
	b := bucket(s.reposts, p.ID)
	b.toggle(viewerID, on)
	return b[viewerID], len(b), nil
}

// SetJobStatus moves a job post owned by viewerID to status.
func (s *Store) SetJobStatus(viewerID, postID string, status models.JobStatus) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return models.Post{}, models.NewNotFoundError("Post", postID)
	}
	if p.Author.ID != viewerID {
		return models.Post{}, models.NewUnauthorizedError("only the author can change job status")
	}
	p.JobStatus = status
	return s.render(viewerID, p), nil
}

// SetFollow follows or unfollows targetID and returns the target's follower
// count.
func (s *Store) SetFollow(viewerID, targetID string, on bool) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[targetID]; !ok {
		return false, 0, models.NewNotFoundError("User", targetID)
	}
	if viewerID == targetID {
		return false, 0, models.NewValidationError("cannot follow yourself")
	}
	b := bucket(s.follows, viewerID)
	b.toggle(targetID, on)
	return b[targetID], s.followers(targetID), nil
}

// FollowState reports whether viewerID follows targetID.
func (s *Store) FollowState(viewerID, targetID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[targetID]; !ok {
		return false, 0, models.NewNotFoundError("User", targetID)
	}
	return s.follows[viewerID][targetID], s.followers(targetID), nil
}

// Comments returns a post's comments newest first, replies oldest first.
func (s *Store) Comments(viewerID, postID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return nil, models.NewNotFoundError("Post", postID)
	}
	out := lo.Map(s.comments[postID], func(c *models.Comment, _ int) models.Comment {
		return s.renderComment(viewerID, c)
	})
	slices.SortStableFunc(out, func(a, b models.Comment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) renderComment(viewerID string, c *models.Comment) models.Comment {
	out := c.Clone()
	out.LikesCount = len(s.reactions[c.ID])
	out.Liked = s.reactions[c.ID][viewerID]
	out.RepliesCount = len(c.Replies)
	for i := range out.Replies {
		r := &out.Replies[i]
		r.LikesCount = len(s.reactions[r.ID])
		r.Liked = s.reactions[r.ID][viewerID]
	}
	return out
}

func validText(text string) error {
	if strings.TrimSpace(text) == "" {
		return models.NewValidationError("comment text is required")
	}
	if len(text) > models.MaxCommentLength {
		return models.NewValidationError("comment text is too long")
	}
	return nil
}

// AddComment adds a top-level comment to a post.
func (s *Store) AddComment(viewerID, postID, text string) (models.Comment, error) {
	if err := validText(text); err != nil {
		return models.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return models.Comment{}, models.NewNotFoundError("Post", postID)
	}
	author, ok := s.accounts[viewerID]
	if !ok {
		return models.Comment{}, models.NewUnauthorizedError("unknown viewer")
	}
	c := &models.Comment{
		ID:        s.nextID("c"),
		Text:      text,
		Author:    author.summary,
		CreatedAt: s.now(),
	}
	s.comments[postID] = append(s.comments[postID], c)
	return s.renderComment(viewerID, c), nil
}

// AddReply appends a reply to a top-level comment.
func (s *Store) AddReply(viewerID, parentID, text string) (models.Reply, error) {
	if err := validText(text); err != nil {
		return models.Reply{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, parent := s.findComment(parentID)
	if parent == nil {
		return models.Reply{}, models.NewNotFoundError("Comment", parentID)
	}
	author, ok := s.accounts[viewerID]
	if !ok {
		return models.Reply{}, models.NewUnauthorizedError("unknown viewer")
	}
	r := models.Reply{
		ID:        s.nextID("r"),
		Text:      text,
		Author:    author.summary,
		CreatedAt: s.now(),
	}
	parent.Replies = append(parent.Replies, r)
	return r, nil
}

func (s *Store) findComment(id string) (postID string, c *models.Comment) {
	for pid, list := range s.comments {
		for _, c := range list {
			if c.ID == id {
				return pid, c
			}
		}
	}
	return "", nil
}

// DeleteComment removes a top-level comment written by viewerID.
func (s *Store) DeleteComment(viewerID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	postID, c := s.findComment(commentID)
	if c == nil {
		return models.NewNotFoundError("Comment", commentID)
	}
	if c.Author.ID != viewerID {
		return models.NewUnauthorizedError("only the author can delete a comment")
	}
	s.comments[postID] = lo.Without(s.comments[postID], c)
	delete(s.reactions, commentID)
	return nil
}

// DeleteReply removes a reply written by viewerID.
func (s *Store) DeleteReply(viewerID, parentID, replyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, parent := s.findComment(parentID)
	if parent == nil {
		return models.NewNotFoundError("Comment", parentID)
	}
	i := slices.IndexFunc(parent.Replies, func(r models.Reply) bool { return r.ID == replyID })
	if i < 0 {
		return models.NewNotFoundError("Reply", replyID)
	}
	if parent.Replies[i].Author.ID != viewerID {
		return models.NewUnauthorizedError("only the author can delete a reply")
	}
	parent.Replies = slices.Delete(parent.Replies, i, i+1)
	delete(s.reactions, replyID)
	return nil
}

// SetReaction likes or unlikes a comment, or a reply of parentID.
func (s *Store) SetReaction(viewerID, parentID, id string, on bool) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lookup := id
	if parentID != "" {
		lookup = parentID
	}
	_, c := s.findComment(lookup)
	if c == nil {
		return false, 0, models.NewNotFoundError("Comment", lookup)
	}
	if parentID != "" && !slices.ContainsFunc(c.Replies, func(r models.Reply) bool { return r.ID == id }) {
		return false, 0, models.NewNotFoundError("Reply", id)
	}
	b := bucket(s.reactions, id)
	b.toggle(viewerID, on)
	return b[viewerID], len(b), nil
}
