// Package models contains data structures for the feed client's domain models.
package models

// UserSummary is an immutable author snapshot referenced by posts and comments.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Profile is the entity snapshot shown by a profile view.
type Profile struct {
	User           UserSummary `json:"user"`
	Bio            string      `json:"bio"`
	FollowersCount int         `json:"followers_count"`
	FollowingCount int         `json:"following_count"`
	PostsCount     int         `json:"posts_count"`
	// Following reports whether the viewer follows this user (computed per viewer)
	Following bool `json:"following"`
}

// FollowEdge is the (viewer, target) follow fact.
type FollowEdge struct {
	ViewerID  string `json:"viewer_id"`
	TargetID  string `json:"target_id"`
	Following bool   `json:"following"`
}
