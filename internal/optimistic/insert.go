// Package optimistic holds the single insert-then-reconcile primitive used
// for every provisional entity (comments, replies).
package optimistic

import (
	"context"
	"strings"

	"feedsync/internal/mutation"

	"github.com/google/uuid"
)

// TempPrefix marks locally generated identifiers.
const TempPrefix = "tmp-"

// TempID returns a fresh temporary identifier.
func TempID() string {
	return TempPrefix + uuid.NewString()
}

// IsTemp reports whether id was generated by TempID.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// Runner executes an optimistic operation. *mutation.Coordinator is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, op mutation.Op) error
}

// Collection is the accessor the insert protocol needs from the owning list.
type Collection[T any] interface {
	// Insert places a provisional item.
	Insert(item T)
	// Replace swaps the item holding tempID for item, in place.
	Replace(tempID string, item T) bool
	// Remove drops the item holding tempID.
	Remove(tempID string) bool
}

// Insert describes one optimistic insert.
type Insert[T any] struct {
	// Name and Key label the operation and scope its busy flag.
	Name string
	Key  string
	// Class defaults to mutation.Soft.
	Class mutation.Class

	Collection Collection[T]
	// NewTempID defaults to TempID.
	NewTempID func() string
	// Build creates the provisional item for tempID.
	Build func(tempID string) T
	// Call performs the network request and returns the canonical item.
	Call func(ctx context.Context) (T, error)
	// Merge combines the provisional item with the server's copy. Defaults to
	// taking the canonical item unchanged.
	Merge func(provisional, canonical T) T

	// Applied runs after the provisional item is inserted.
	Applied func()
	// Reconciled runs after the provisional item was replaced in place.
	Reconciled func(canonical T)
	// RolledBack runs when the call failed and the provisional item was
	// still present and has been removed.
	RolledBack func(err error)
	// Failed runs on every failure, after RolledBack.
	Failed func(err error)
}

// Run applies the insert synchronously, dispatches the call and returns the
// temporary id. Reconciliation and rollback are no-ops if the provisional
// item is gone by the time the response arrives. An error means the runner
// refused the operation and nothing was inserted.
func Run[T any](ctx context.Context, r Runner, in Insert[T]) (string, error) {
	newID := in.NewTempID
	if newID == nil {
		newID = TempID
	}
	tempID := newID()
	provisional := in.Build(tempID)

	var canonical T
	removed := false

	err := r.Run(ctx, mutation.Op{
		Name:  in.Name,
		Key:   in.Key,
		Class: in.Class,
		Apply: func() {
			in.Collection.Insert(provisional)
			if in.Applied != nil {
				in.Applied()
			}
		},
		Revert: func() {
			removed = in.Collection.Remove(tempID)
		},
		Call: func(ctx context.Context) error {
			var err error
			canonical, err = in.Call(ctx)
			return err
		},
		Reconcile: func() {
			merged := canonical
			if in.Merge != nil {
				merged = in.Merge(provisional, canonical)
			}
			if in.Collection.Replace(tempID, merged) && in.Reconciled != nil {
				in.Reconciled(merged)
			}
		},
		Failed: func(err error) {
			if removed && in.RolledBack != nil {
				in.RolledBack(err)
			}
			if in.Failed != nil {
				in.Failed(err)
			}
		},
	})
	if err != nil {
		return "", err
	}
	return tempID, nil
}
