package models

import "time"

// MaxCommentLength bounds comment and reply text, in bytes.
const MaxCommentLength = 10000

// Reply is a second-level comment. Replies never own replies.
type Reply struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Author     UserSummary `json:"author"`
	CreatedAt  time.Time   `json:"created_at"`
	LikesCount int         `json:"likes_count"`
	Liked      bool        `json:"liked"`
	// Pending marks an optimistic node whose id is still temporary
	Pending bool `json:"-"`
}

// Comment is a top-level comment owning an ordered list of replies.
type Comment struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	Author       UserSummary `json:"author"`
	CreatedAt    time.Time   `json:"created_at"`
	LikesCount   int         `json:"likes_count"`
	Liked        bool        `json:"liked"`
	RepliesCount int         `json:"replies_count"`
	Replies      []Reply     `json:"replies"`
	Pending      bool        `json:"-"`
}

// Clone returns a copy whose reply slice is not shared.
func (c Comment) Clone() Comment {
	out := c
	if c.Replies != nil {
		out.Replies = append([]Reply(nil), c.Replies...)
	}
	return out
}
