// Package comments holds the two-level comment tree of one post: top-level
// comments, each owning an ordered list of replies.
package comments

import (
	"context"
	"slices"
	"strings"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/dispatch"
	"feedsync/internal/entitycache"
	"feedsync/internal/models"
	"feedsync/internal/mutation"
	"feedsync/internal/optimistic"

	"github.com/samber/lo"
)

// Backend is the slice of the REST client the tree uses.
type Backend interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, postID, text string) (models.Comment, error)
	CreateReply(ctx context.Context, parentID, text string) (models.Reply, error)
	DeleteComment(ctx context.Context, commentID string) error
	DeleteReply(ctx context.Context, parentID, replyID string) error
	SetCommentLike(ctx context.Context, commentID, parentID string, liked bool) (api.ToggleResult, error)
}

// Deps groups the collaborators of a Tree.
type Deps struct {
	Coordinator *mutation.Coordinator
	Dispatcher  dispatch.Dispatcher
	Backend     Backend
	Cache       *entitycache.Cache
	// Author returns the viewer shown on provisional nodes.
	Author func() models.UserSummary
	Now    func() time.Time
}

// Tree is the comment collection of one post. It must only be used from the
// owning goroutine.
type Tree struct {
	postID   string
	deps     Deps
	comments []models.Comment
	count    int
	expanded map[string]bool
	onChange func()
}

// NewTree returns an empty tree for postID.
func NewTree(postID string, deps Deps) *Tree {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Author == nil {
		deps.Author = func() models.UserSummary { return models.UserSummary{} }
	}
	return &Tree{
		postID:   postID,
		deps:     deps,
		expanded: make(map[string]bool),
		onChange: func() {},
	}
}

// OnChange registers fn to run after every local change.
func (t *Tree) OnChange(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	t.onChange = fn
}

// PostID returns the post the tree belongs to.
func (t *Tree) PostID() string { return t.postID }

// Count is the post's comment counter.
func (t *Tree) Count() int { return t.count }

// SetCount seeds the comment counter from the post.
func (t *Tree) SetCount(n int) {
	t.count = max(n, 0)
}

// Load fetches the full comment list and replaces the tree with it. done
// runs on the owning goroutine; a cancelled ctx drops the response.
func (t *Tree) Load(ctx context.Context, done func(error)) {
	var list []models.Comment
	t.deps.Dispatcher.Dispatch(ctx, func(ctx context.Context) error {
		var err error
		list, err = t.deps.Backend.ListComments(ctx, t.postID)
		return err
	}, func(err error) {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if err == nil {
			t.Replace(list)
		}
		if done != nil {
			done(err)
		}
	})
}

// Replace installs a freshly fetched list. Top-level comments are sorted
// newest first. Deleted ids and ids with a delete in flight are dropped.
func (t *Tree) Replace(list []models.Comment) {
	list = lo.FilterMap(list, func(c models.Comment, _ int) (models.Comment, bool) {
		if t.hidden(c.ID) {
			return c, false
		}
		c = c.Clone()
		c.Replies = lo.Reject(c.Replies, func(r models.Reply, _ int) bool { return t.hidden(r.ID) })
		return c, true
	})
	slices.SortStableFunc(list, func(a, b models.Comment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	t.comments = list
	t.count = len(list)
	t.onChange()
}

// Snapshot returns a deep copy for rendering.
func (t *Tree) Snapshot() []models.Comment {
	return lo.Map(t.comments, func(c models.Comment, _ int) models.Comment { return c.Clone() })
}

// Expand shows the replies of commentID.
func (t *Tree) Expand(commentID string) { t.expanded[commentID] = true }

// Collapse hides the replies of commentID.
func (t *Tree) Collapse(commentID string) { delete(t.expanded, commentID) }

// IsExpanded reports whether replies of commentID are shown. Replies start
// collapsed.
func (t *Tree) IsExpanded(commentID string) bool { return t.expanded[commentID] }

// Submitting reports whether a comment (parentID empty) or a reply to
// parentID is awaiting the server.
func (t *Tree) Submitting(parentID string) bool {
	key := "comment:" + t.postID
	if parentID != "" {
		key += ":" + parentID
	}
	return t.deps.Coordinator.Busy(key)
}

// Insert adds a comment, or a reply when parentID is set, optimistically and
// returns its temporary id.
func (t *Tree) Insert(ctx context.Context, text, parentID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", models.NewValidationError("comment text is required")
	}
	if len(text) > models.MaxCommentLength {
		return "", models.NewValidationError("comment text is too long")
	}
	if parentID == "" {
		return t.insertComment(ctx, text)
	}
	return t.insertReply(ctx, text, parentID)
}

func (t *Tree) insertComment(ctx context.Context, text string) (string, error) {
	return optimistic.Run(ctx, t.deps.Coordinator, optimistic.Insert[models.Comment]{
		Name:       "comment",
		Key:        "comment:" + t.postID,
		Class:      mutation.Hard,
		Collection: topLevel{t},
		Build: func(tempID string) models.Comment {
			return models.Comment{
				ID:        tempID,
				Text:      text,
				Author:    t.deps.Author(),
				CreatedAt: t.deps.Now(),
				Pending:   true,
			}
		},
		Call: func(ctx context.Context) (models.Comment, error) {
			return t.deps.Backend.CreateComment(ctx, t.postID, text)
		},
		Merge: func(p, c models.Comment) models.Comment {
			c = c.Clone()
			c.Pending = false
			fillComment(&c, p)
			return c
		},
		Applied:    func() { t.bumpCount(1) },
		RolledBack: func(error) { t.bumpCount(-1) },
	})
}

func (t *Tree) insertReply(ctx context.Context, text, parentID string) (string, error) {
	parent := t.comment(parentID)
	if parent == nil {
		if _, _, nested := t.locateReply(parentID); nested {
			return "", models.NewValidationError("replies cannot be nested")
		}
		return "", models.NewNotFoundError("Comment", parentID)
	}
	if optimistic.IsTemp(parentID) {
		return "", models.NewValidationError("comment is still being posted")
	}
	wasExpanded := t.expanded[parentID]

	return optimistic.Run(ctx, t.deps.Coordinator, optimistic.Insert[models.Reply]{
		Name:       "reply",
		Key:        "comment:" + t.postID + ":" + parentID,
		Class:      mutation.Hard,
		Collection: replies{t, parentID},
		Build: func(tempID string) models.Reply {
			return models.Reply{
				ID:        tempID,
				Text:      text,
				Author:    t.deps.Author(),
				CreatedAt: t.deps.Now(),
				Pending:   true,
			}
		},
		Call: func(ctx context.Context) (models.Reply, error) {
			return t.deps.Backend.CreateReply(ctx, parentID, text)
		},
		Merge: func(p, r models.Reply) models.Reply {
			r.Pending = false
			fillReply(&r, p)
			return r
		},
		Applied: func() {
			t.bumpReplies(parentID, 1)
			t.expanded[parentID] = true
		},
		RolledBack: func(error) { t.bumpReplies(parentID, -1) },
		Failed: func(error) {
			if !wasExpanded {
				delete(t.expanded, parentID)
			}
			t.onChange()
		},
	})
}

// Like flips the viewer's like on a comment or reply. Failures roll back
// silently.
func (t *Tree) Like(ctx context.Context, commentID, parentID string) error {
	if optimistic.IsTemp(commentID) {
		return models.NewValidationError("comment is still being posted")
	}
	flag, _, ok := t.likeFields(commentID, parentID)
	if !ok {
		return models.NewNotFoundError("Comment", commentID)
	}

	delta := mutation.Flip(*flag)
	var applied mutation.Toggle
	var result api.ToggleResult

	return t.deps.Coordinator.Run(ctx, mutation.Op{
		Name:  "comment-like",
		Key:   "comment-like:" + commentID,
		Class: mutation.Soft,
		Apply: func() {
			if flag, count, ok := t.likeFields(commentID, parentID); ok {
				applied = delta.ApplyTo(flag, count)
				t.onChange()
			}
		},
		Revert: func() {
			if flag, count, ok := t.likeFields(commentID, parentID); ok {
				applied.Invert().ApplyTo(flag, count)
				t.onChange()
			}
		},
		Call: func(ctx context.Context) error {
			var err error
			result, err = t.deps.Backend.SetCommentLike(ctx, commentID, parentID, delta.After)
			return err
		},
		Reconcile: func() {
			if flag, count, ok := t.likeFields(commentID, parentID); ok {
				*flag = result.Active
				*count = max(result.Count, 0)
				t.onChange()
			}
		},
	})
}

// Delete removes a comment or reply optimistically. On failure the node is
// restored at its original position and the failure is surfaced.
func (t *Tree) Delete(ctx context.Context, commentID string) error {
	if optimistic.IsTemp(commentID) {
		return models.NewValidationError("comment is still being posted")
	}

	parentID := ""
	if i := t.commentIndex(commentID); i < 0 {
		p, _, ok := t.locateReply(commentID)
		if !ok {
			return models.NewNotFoundError("Comment", commentID)
		}
		parentID = t.comments[p].ID
	}

	var removedComment models.Comment
	var removedReply models.Reply
	index, decremented := -1, 0

	return t.deps.Coordinator.Run(ctx, mutation.Op{
		Name:  "comment-delete",
		Key:   "comment-delete:" + commentID,
		Class: mutation.Hard,
		Apply: func() {
			if t.deps.Cache != nil {
				t.deps.Cache.MarkDeleting(entitycache.ViewPostDetail, t.postID, commentID)
			}
			if parentID == "" {
				if i := t.commentIndex(commentID); i >= 0 {
					removedComment, index = t.comments[i], i
					t.comments = slices.Delete(t.comments, i, i+1)
					decremented = t.bumpCount(-1)
				}
			} else if p, r, ok := t.locateReply(commentID); ok {
				parent := &t.comments[p]
				removedReply, index = parent.Replies[r], r
				parent.Replies = slices.Delete(parent.Replies, r, r+1)
				decremented = t.bumpReplies(parentID, -1)
			}
			t.onChange()
		},
		Revert: func() {
			if t.deps.Cache != nil {
				t.deps.Cache.UnmarkDeleting(entitycache.ViewPostDetail, t.postID, commentID)
			}
			if index < 0 {
				return
			}
			if parentID == "" {
				t.comments = slices.Insert(t.comments, min(index, len(t.comments)), removedComment)
				t.bumpCount(-decremented)
			} else if parent := t.comment(parentID); parent != nil {
				parent.Replies = slices.Insert(parent.Replies, min(index, len(parent.Replies)), removedReply)
				t.bumpReplies(parentID, -decremented)
			}
			t.onChange()
		},
		Call: func(ctx context.Context) error {
			if parentID == "" {
				return t.deps.Backend.DeleteComment(ctx, commentID)
			}
			return t.deps.Backend.DeleteReply(ctx, parentID, commentID)
		},
		Reconcile: func() {
			if t.deps.Cache != nil {
				t.deps.Cache.Tombstone(entitycache.ViewPostDetail, t.postID, commentID)
			}
			delete(t.expanded, commentID)
		},
	})
}

func (t *Tree) hidden(id string) bool {
	return t.deps.Cache != nil && t.deps.Cache.IsHidden(entitycache.ViewPostDetail, t.postID, id)
}

// bumpCount moves the comment counter by d, floored at zero, and returns the
// delta that landed.
func (t *Tree) bumpCount(d int) int {
	next := max(t.count+d, 0)
	applied := next - t.count
	t.count = next
	t.onChange()
	return applied
}

func (t *Tree) bumpReplies(parentID string, d int) int {
	parent := t.comment(parentID)
	if parent == nil {
		return 0
	}
	next := max(parent.RepliesCount+d, 0)
	applied := next - parent.RepliesCount
	parent.RepliesCount = next
	return applied
}

func (t *Tree) commentIndex(id string) int {
	return slices.IndexFunc(t.comments, func(c models.Comment) bool { return c.ID == id })
}

func (t *Tree) comment(id string) *models.Comment {
	if i := t.commentIndex(id); i >= 0 {
		return &t.comments[i]
	}
	return nil
}

// locateReply scans every reply list for id.
func (t *Tree) locateReply(id string) (parent, reply int, ok bool) {
	for p := range t.comments {
		for r := range t.comments[p].Replies {
			if t.comments[p].Replies[r].ID == id {
				return p, r, true
			}
		}
	}
	return -1, -1, false
}

func (t *Tree) likeFields(commentID, parentID string) (*bool, *int, bool) {
	if parentID == "" {
		if c := t.comment(commentID); c != nil {
			return &c.Liked, &c.LikesCount, true
		}
		return nil, nil, false
	}
	parent := t.comment(parentID)
	if parent == nil {
		return nil, nil, false
	}
	for i := range parent.Replies {
		if parent.Replies[i].ID == commentID {
			return &parent.Replies[i].Liked, &parent.Replies[i].LikesCount, true
		}
	}
	return nil, nil, false
}

func fillComment(c *models.Comment, p models.Comment) {
	if c.Text == "" {
		c.Text = p.Text
	}
	if c.Author.ID == "" {
		c.Author = p.Author
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = p.CreatedAt
	}
	if c.Replies == nil {
		c.Replies = p.Replies
	}
}

func fillReply(r *models.Reply, p models.Reply) {
	if r.Text == "" {
		r.Text = p.Text
	}
	if r.Author.ID == "" {
		r.Author = p.Author
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = p.CreatedAt
	}
}
