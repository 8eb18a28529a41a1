package api

import "feedsync/internal/models"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer credential and the signed-in user.
type LoginResponse struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// PostPage is one page of a profile tab.
type PostPage struct {
	Items   []models.Post `json:"items"`
	HasMore bool          `json:"has_more"`
}

// ToggleResult is the canonical state after a like, repost or follow call.
type ToggleResult struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// TextBody is the body of comment and reply creation.
type TextBody struct {
	Text string `json:"text"`
}

// StatusBody is the body of a job status update.
type StatusBody struct {
	Status models.JobStatus `json:"status"`
}
