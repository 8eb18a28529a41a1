// Package eventbus is the in-process publish/subscribe channel shared by
// every mounted view. Delivery is synchronous and nothing is buffered.
package eventbus

import "feedsync/internal/models"

// Kind names one of the closed set of cross-view events.
type Kind string

const (
	KindFollowChanged        Kind = "follow-change"
	KindPostStatusChanged    Kind = "post-status-change"
	KindViewerOverlayToggled Kind = "viewer-overlay-toggle"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindFollowChanged, KindPostStatusChanged, KindViewerOverlayToggled}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFollowChanged, KindPostStatusChanged, KindViewerOverlayToggled:
		return true
	}
	return false
}

// Event is implemented only by the payload types in this package.
type Event interface {
	Kind() Kind
	event()
}

// FollowChanged carries the viewer's follow state for a target user.
type FollowChanged struct {
	TargetID  string
	Following bool
}

// PostStatusChanged carries a job post's new status.
type PostStatusChanged struct {
	PostID string
	Status models.JobStatus
}

// ViewerOverlayToggled tells short-video players to show or hide their overlay.
type ViewerOverlayToggled struct {
	Visible bool
}

func (FollowChanged) Kind() Kind        { return KindFollowChanged }
func (PostStatusChanged) Kind() Kind    { return KindPostStatusChanged }
func (ViewerOverlayToggled) Kind() Kind { return KindViewerOverlayToggled }

func (FollowChanged) event()        {}
func (PostStatusChanged) event()    {}
func (ViewerOverlayToggled) event() {}
