package api

import (
	"context"
	"strconv"

	"feedsync/internal/models"
	"feedsync/internal/pagination"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.Request(ctx, Call{
		Entity: EntitySession, Op: OpCreate,
		Body: LoginRequest{Username: username, Password: password},
	}, &out)
	return out, err
}

// FetchProfile returns a user's profile as seen by the viewer.
func (c *Client) FetchProfile(ctx context.Context, userID string) (models.Profile, error) {
	var out models.Profile
	err := c.Request(ctx, Call{Entity: EntityProfile, Op: OpGet, ID: userID}, &out)
	return out, err
}

// FetchPosts returns one page of a profile tab.
func (c *Client) FetchPosts(ctx context.Context, userID string, tab pagination.Tab, page, limit int) (PostPage, error) {
	var out PostPage
	err := c.Request(ctx, Call{
		Entity: EntityPost, Op: OpList, ID: userID,
		Query: map[string]string{
			"tab":   string(tab),
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		},
	}, &out)
	return out, err
}

// FetchPost returns a single post.
func (c *Client) FetchPost(ctx context.Context, postID string) (models.Post, error) {
	var out models.Post
	err := c.Request(ctx, Call{Entity: EntityPost, Op: OpGet, ID: postID}, &out)
	return out, err
}

// DeletePost removes a post owned by the viewer.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.Request(ctx, Call{Entity: EntityPost, Op: OpDelete, ID: postID}, nil)
}

// SetPostLike likes or unlikes a post.
func (c *Client) SetPostLike(ctx context.Context, postID string, liked bool) (ToggleResult, error) {
	return c.toggle(ctx, EntityPostLike, postID, "", liked)
}

// SetRepost reposts or un-reposts a post.
func (c *Client) SetRepost(ctx context.Context, postID string, reposted bool) (ToggleResult, error) {
	return c.toggle(ctx, EntityRepost, postID, "", reposted)
}

// SetFollow follows or unfollows a user.
func (c *Client) SetFollow(ctx context.Context, targetID string, following bool) (ToggleResult, error) {
	return c.toggle(ctx, EntityFollow, targetID, "", following)
}

// FetchFollow returns the viewer's current follow state for a user.
func (c *Client) FetchFollow(ctx context.Context, targetID string) (ToggleResult, error) {
	var out ToggleResult
	err := c.Request(ctx, Call{Entity: EntityFollow, Op: OpGet, ID: targetID}, &out)
	return out, err
}

// SetJobStatus updates a job post's status.
func (c *Client) SetJobStatus(ctx context.Context, postID string, status models.JobStatus) (models.Post, error) {
	var out models.Post
	err := c.Request(ctx, Call{
		Entity: EntityJobStatus, Op: OpUpdate, ID: postID,
		Body: StatusBody{Status: status},
	}, &out)
	return out, err
}

// ListComments returns every comment of a post with its replies.
func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.Request(ctx, Call{Entity: EntityComment, Op: OpList, ID: postID}, &out)
	return out, err
}

// CreateComment adds a top-level comment.
func (c *Client) CreateComment(ctx context.Context, postID, text string) (models.Comment, error) {
	var out models.Comment
	err := c.Request(ctx, Call{Entity: EntityComment, Op: OpCreate, ID: postID, Body: TextBody{Text: text}}, &out)
	return out, err
}

// CreateReply adds a reply under parentID.
func (c *Client) CreateReply(ctx context.Context, parentID, text string) (models.Reply, error) {
	var out models.Reply
	err := c.Request(ctx, Call{Entity: EntityReply, Op: OpCreate, ParentID: parentID, Body: TextBody{Text: text}}, &out)
	return out, err
}

// DeleteComment removes a top-level comment.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.Request(ctx, Call{Entity: EntityComment, Op: OpDelete, ID: commentID}, nil)
}

// DeleteReply removes a reply.
func (c *Client) DeleteReply(ctx context.Context, parentID, replyID string) error {
	return c.Request(ctx, Call{Entity: EntityReply, Op: OpDelete, ID: replyID, ParentID: parentID}, nil)
}

// SetCommentLike likes or unlikes a comment, or a reply when parentID is set.
func (c *Client) SetCommentLike(ctx context.Context, commentID, parentID string, liked bool) (ToggleResult, error) {
	if parentID != "" {
		return c.toggle(ctx, EntityReplyLike, commentID, parentID, liked)
	}
	return c.toggle(ctx, EntityCommentLike, commentID, "", liked)
}

func (c *Client) toggle(ctx context.Context, entity EntityKind, id, parentID string, on bool) (ToggleResult, error) {
	op := OpDelete
	if on {
		op = OpCreate
	}
	var out ToggleResult
	err := c.Request(ctx, Call{Entity: entity, Op: op, ID: id, ParentID: parentID}, &out)
	return out, err
}
