package models

import (
	"fmt"
	"strings"
	"time"
)

// MaxRepostDepth is the deepest originalPost nesting a post may carry.
const MaxRepostDepth = 1

// JobStatus is the hiring state attached to job posts.
type JobStatus string

const (
	JobStatusOpen        JobStatus = "open"
	JobStatusNegotiating JobStatus = "negotiating"
	JobStatusHired       JobStatus = "hired"
)

// Valid reports whether s is a known status. The empty status is valid for non-job posts.
func (s JobStatus) Valid() bool {
	switch s {
	case "", JobStatusOpen, JobStatusNegotiating, JobStatusHired:
		return true
	}
	return false
}

// ParseJobStatus parses a status name case-insensitively.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" || !s.Valid() {
		return "", NewValidationError(fmt.Sprintf("invalid job status %q", raw))
	}
	return s, nil
}

// MediaKind distinguishes images from short videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is one attachment of a post, in display order.
type Media struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// Post represents a feed post as seen by the current viewer.
type Post struct {
	ID            string      `json:"id"`
	Author        UserSummary `json:"author"`
	Content       string      `json:"content"`
	Media         []Media     `json:"media"`
	LikesCount    int         `json:"likes_count"`
	CommentsCount int         `json:"comments_count"`
	RepostsCount  int         `json:"reposts_count"`
	// Liked and Reposted are computed for the requesting viewer
	Liked        bool      `json:"liked"`
	Reposted     bool      `json:"reposted"`
	JobStatus    JobStatus `json:"job_status,omitempty"`
	OriginalPost *Post     `json:"original_post,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsVideo reports whether the first attachment is a short video.
func (p *Post) IsVideo() bool {
	return len(p.Media) > 0 && p.Media[0].Kind == MediaVideo
}

// RepostDepth returns how many originalPost links hang below p.
func (p *Post) RepostDepth() int {
	depth := 0
	for cur := p.OriginalPost; cur != nil; cur = cur.OriginalPost {
		depth++
		if depth > MaxRepostDepth {
			break
		}
	}
	return depth
}

// Validate checks the structural invariants of a fetched post.
func (p *Post) Validate() error {
	if p.ID == "" {
		return NewValidationError("post id is required")
	}
	if !p.JobStatus.Valid() {
		return NewValidationError(fmt.Sprintf("invalid job status %q", p.JobStatus))
	}
	if p.RepostDepth() > MaxRepostDepth {
		return NewValidationError(fmt.Sprintf("repost nesting exceeds depth %d", MaxRepostDepth))
	}
	return nil
}

// NewRepost wraps original in a repost authored by author. Reposting a repost
// wraps the underlying original so nesting never exceeds MaxRepostDepth.
func NewRepost(id string, author UserSummary, original Post, at time.Time) Post {
	if original.OriginalPost != nil {
		original = *original.OriginalPost
	}
	original.OriginalPost = nil
	return Post{
		ID:           id,
		Author:       author,
		OriginalPost: &original,
		CreatedAt:    at,
	}
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	out := p
	if p.Media != nil {
		out.Media = append([]Media(nil), p.Media...)
	}
	if p.OriginalPost != nil {
		orig := p.OriginalPost.Clone()
		out.OriginalPost = &orig
	}
	return out
}
