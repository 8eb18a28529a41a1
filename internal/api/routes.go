// Package api is the REST backend collaborator: every call is
// request(entity, operation, id, body) -> canonical entity | failure.
package api

import "net/http"

// EntityKind names a REST resource family.
type EntityKind string

const (
	EntitySession     EntityKind = "session"
	EntityProfile     EntityKind = "profile"
	EntityPost        EntityKind = "post"
	EntityPostLike    EntityKind = "post-like"
	EntityRepost      EntityKind = "repost"
	EntityJobStatus   EntityKind = "job-status"
	EntityComment     EntityKind = "comment"
	EntityCommentLike EntityKind = "comment-like"
	EntityReply       EntityKind = "reply"
	EntityReplyLike   EntityKind = "reply-like"
	EntityFollow      EntityKind = "follow"
)

// Operation is the verb applied to an entity.
type Operation string

const (
	OpGet    Operation = "get"
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

type route struct {
	method string
	path   string
	public bool
}

// Paths use {id} for the target and {parent} for the owning comment.
var routes = map[EntityKind]map[Operation]route{
	EntitySession: {
		OpCreate: {http.MethodPost, "/auth/login", true},
	},
	EntityProfile: {
		OpGet: {http.MethodGet, "/users/{id}", false},
	},
	EntityPost: {
		OpGet:    {http.MethodGet, "/posts/{id}", false},
		OpList:   {http.MethodGet, "/users/{id}/posts", false},
		OpDelete: {http.MethodDelete, "/posts/{id}", false},
	},
	EntityPostLike: {
		OpCreate: {http.MethodPost, "/posts/{id}/like", false},
		OpDelete: {http.MethodDelete, "/posts/{id}/like", false},
	},
	EntityRepost: {
		OpCreate: {http.MethodPost, "/posts/{id}/repost", false},
		OpDelete: {http.MethodDelete, "/posts/{id}/repost", false},
	},
	EntityJobStatus: {
		OpUpdate: {http.MethodPut, "/posts/{id}/status", false},
	},
	EntityComment: {
		OpList:   {http.MethodGet, "/posts/{id}/comments", false},
		OpCreate: {http.MethodPost, "/posts/{id}/comments", false},
		OpDelete: {http.MethodDelete, "/comments/{id}", false},
	},
	EntityCommentLike: {
		OpCreate: {http.MethodPost, "/comments/{id}/like", false},
		OpDelete: {http.MethodDelete, "/comments/{id}/like", false},
	},
	EntityReply: {
		OpCreate: {http.MethodPost, "/comments/{parent}/replies", false},
		OpDelete: {http.MethodDelete, "/comments/{parent}/replies/{id}", false},
	},
	EntityReplyLike: {
		OpCreate: {http.MethodPost, "/comments/{parent}/replies/{id}/like", false},
		OpDelete: {http.MethodDelete, "/comments/{parent}/replies/{id}/like", false},
	},
	EntityFollow: {
		OpGet:    {http.MethodGet, "/users/{id}/follow", false},
		OpCreate: {http.MethodPost, "/users/{id}/follow", false},
		OpDelete: {http.MethodDelete, "/users/{id}/follow", false},
	},
}
