// Package mutation implements the optimistic mutation protocol: apply a
// delta synchronously, dispatch the request, then reconcile on success or
// apply the exact inverse of the dispatched delta on failure.
package mutation

import (
	"context"

	"feedsync/internal/dispatch"
	"feedsync/internal/featureflags"
	"feedsync/internal/models"
	"feedsync/internal/observability"
)

// Class selects the failure visibility policy of an operation.
type Class int

const (
	// Soft operations (like, follow, repost) roll back silently.
	Soft Class = iota
	// Hard operations (deletes, comment submission) surface a blocking error
	// and refuse a second submission while one is outstanding.
	Hard
)

func (c Class) String() string {
	if c == Hard {
		return "hard"
	}
	return "soft"
}

// Op is one optimistic mutation. Only Name, Key, Apply and Call are
// required.
type Op struct {
	// Name labels logs and metrics, e.g. "follow".
	Name string
	// Key scopes the busy flag and the sequence guard, e.g. "follow:<target>".
	Key   string
	Class Class

	// Apply is the optimistic delta. It must tolerate the target having
	// disappeared from view state.
	Apply func()
	// Revert is the exact inverse of what Apply did.
	Revert func()
	// Call performs the network request.
	Call func(ctx context.Context) error
	// Reconcile merges canonical server fields after a successful Call.
	Reconcile func()
	// Publish broadcasts the applied fact to other views.
	Publish func()
	// Compensate broadcasts the reverted fact.
	Compensate func()
	// Failed runs after Revert and Compensate on every failure.
	Failed func(err error)
}

// Credentials is the guard consulted before any optimistic state is touched.
type Credentials interface {
	Credential() (string, error)
	ViewerID() string
}

// Notifier shows a blocking failure notice for hard operations.
type Notifier interface {
	Notify(op string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(op string, err error)

// Notify implements Notifier.
func (f NotifierFunc) Notify(op string, err error) { f(op, err) }

// Coordinator runs Ops. It must only be used from the owning goroutine.
type Coordinator struct {
	dispatcher dispatch.Dispatcher
	creds      Credentials
	notifier   Notifier
	flags      *featureflags.Manager
	log        *observability.MutationLogger

	busy     map[string]bool
	seq      map[string]uint64
	inflight map[string]int
	// epoch changes on Reset; completions from an older epoch are dropped.
	epoch uint64
}

// NewCoordinator wires a coordinator. notifier and flags may be nil.
func NewCoordinator(d dispatch.Dispatcher, creds Credentials, notifier Notifier, flags *featureflags.Manager) *Coordinator {
	if notifier == nil {
		notifier = NotifierFunc(func(string, error) {})
	}
	return &Coordinator{
		dispatcher: d,
		creds:      creds,
		notifier:   notifier,
		flags:      flags,
		log:        observability.NewMutationLogger("mutation"),
		busy:       make(map[string]bool),
		seq:        make(map[string]uint64),
		inflight:   make(map[string]int),
	}
}

// InFlight reports whether any operation for key awaits its response.
func (c *Coordinator) InFlight(key string) bool {
	return c.inflight[key] > 0
}

// Reset starts a new session epoch. Responses to operations dispatched
// before the reset are dropped without reconcile or rollback, since the
// state they would touch belongs to the previous viewer.
func (c *Coordinator) Reset() {
	c.epoch++
	c.busy = make(map[string]bool)
	c.seq = make(map[string]uint64)
	c.inflight = make(map[string]int)
}

// Busy reports whether a hard operation for key is outstanding.
func (c *Coordinator) Busy(key string) bool {
	return c.busy[key]
}

// ViewerID returns the signed-in viewer.
func (c *Coordinator) ViewerID() string {
	return c.creds.ViewerID()
}

// Run applies op and dispatches its request. It returns an error only when
// a guard rejected the operation, in which case no state was touched.
func (c *Coordinator) Run(ctx context.Context, op Op) error {
	if op.Class == Hard && c.busy[op.Key] {
		observability.RecordMutation(op.Name, observability.OutcomeRejected)
		return models.NewBusyError(op.Name)
	}
	if _, err := c.creds.Credential(); err != nil {
		observability.RecordMutation(op.Name, observability.OutcomeRejected)
		return err
	}

	op.Apply()
	if op.Publish != nil {
		op.Publish()
	}
	observability.RecordMutation(op.Name, observability.OutcomeApplied)
	c.log.LogApplied(ctx, op.Name, op.Key, map[string]any{"class": op.Class.String()})

	c.seq[op.Key]++
	seq, epoch := c.seq[op.Key], c.epoch
	c.inflight[op.Key]++
	if op.Class == Hard {
		c.busy[op.Key] = true
	}
	guarded := op.Class == Soft && c.flags.Enabled(featureflags.ToggleSequenceGuard, c.creds.ViewerID())

	observability.MutationsInFlight.Inc()
	// Mutations are never cancelled once dispatched.
	c.dispatcher.Dispatch(context.WithoutCancel(ctx), op.Call, func(err error) {
		observability.MutationsInFlight.Dec()
		if epoch != c.epoch {
			c.log.LogSessionEnded(ctx, op.Name, op.Key)
			observability.RecordMutation(op.Name, observability.OutcomeDiscarded)
			return
		}
		if c.inflight[op.Key]--; c.inflight[op.Key] <= 0 {
			delete(c.inflight, op.Key)
		}
		if op.Class == Hard {
			delete(c.busy, op.Key)
		}
		if guarded && seq != c.seq[op.Key] {
			c.log.LogDiscarded(ctx, op.Name, op.Key, seq, c.seq[op.Key])
			observability.RecordMutation(op.Name, observability.OutcomeDiscarded)
			return
		}
		if err != nil {
			c.rollback(ctx, op, err)
			return
		}
		if op.Reconcile != nil {
			op.Reconcile()
		}
		observability.RecordMutation(op.Name, observability.OutcomeReconciled)
		c.log.LogReconciled(ctx, op.Name, op.Key, nil)
	})
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, op Op, err error) {
	if op.Revert != nil {
		op.Revert()
	}
	if op.Compensate != nil {
		op.Compensate()
	}
	observability.RecordMutation(op.Name, observability.OutcomeRolledBack)
	c.log.LogRollback(ctx, op.Name, op.Key, err)
	if op.Failed != nil {
		op.Failed(err)
	}
	if op.Class == Hard {
		c.notifier.Notify(op.Name, err)
	}
}
