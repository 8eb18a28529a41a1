package views

import (
	"context"

	"feedsync/internal/api"
	"feedsync/internal/eventbus"
)

// FollowButton is a standalone follow control, e.g. in a suggestion list.
// Every mounted button for the same target renders the same state.
type FollowButton struct {
	lifecycle
	targetID string
	deps     Deps
}

// NewFollowButton returns an unmounted button for targetID.
func NewFollowButton(targetID string, deps Deps) *FollowButton {
	return &FollowButton{lifecycle: lifecycle{name: "follow-button"}, targetID: targetID, deps: deps}
}

// Mount subscribes to follow changes of the target and fetches its follow
// state. A persisted hint renders until the fetch lands.
func (b *FollowButton) Mount(parent context.Context) error {
	if b.Mounted() {
		return nil
	}
	b.start(parent)
	if err := b.hold(eventbus.On(b.deps.Bus, func(e eventbus.FollowChanged) {
		if e.TargetID == b.targetID {
			b.changed()
		}
	})); err != nil {
		b.stop()
		return err
	}

	fetch(b.deps.Dispatcher, b.ctx, b.name, func(ctx context.Context) (api.ToggleResult, error) {
		return b.deps.Backend.FetchFollow(ctx, b.targetID)
	}, func(res api.ToggleResult, err error) {
		if err != nil {
			return
		}
		b.deps.Toggles.ObserveFollow(b.targetID, res.Active)
		b.changed()
	})
	b.changed()
	return nil
}

// Unmount releases the subscription.
func (b *FollowButton) Unmount() {
	b.stop()
}

// TargetID returns the user the button follows.
func (b *FollowButton) TargetID() string { return b.targetID }

// Following reports the rendered state.
func (b *FollowButton) Following() bool {
	return b.deps.Toggles.Follows().Following(b.targetID)
}

// Toggle flips the follow edge.
func (b *FollowButton) Toggle(ctx context.Context) error {
	return b.deps.Toggles.ToggleFollow(ctx, b.targetID)
}
