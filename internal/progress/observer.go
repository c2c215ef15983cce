// Package progress implements the Progress Observer: a local TTY sink
// and a remote queue sink, both driven by the same item-count and
// category-lifecycle events the Enumeration Manager emits.
package progress

import "context"

// Lifecycle is a run-level lifecycle event.
type Lifecycle string

const (
	LifecycleStarted  Lifecycle = "STARTED"
	LifecycleFinished Lifecycle = "FINISHED"
	LifecycleAborted  Lifecycle = "ABORTED"
)

// Snapshot is the state the Manager hands to the observer on every item
// and every lifecycle transition.
type Snapshot struct {
	ADID          int64
	DomainName    string
	Finished      []string
	Running       []string
	TotalFinished int64
}

// Observer receives per-item and lifecycle notifications from the
// Enumeration Manager. Implementations must not block the caller for
// long; the Manager treats every Progress Observer emission as a
// suspension point but expects it to return promptly.
type Observer interface {
	Item(ctx context.Context, snap Snapshot)
	Lifecycle(ctx context.Context, event Lifecycle, snap Snapshot)
	Close() error
}
