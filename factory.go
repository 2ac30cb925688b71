package softpool

import (
	"context"
	"time"
)

// Factory produces and retires pooled values. Implementations must be safe
// for concurrent use: the pool invokes factory hooks from multiple callers
// without serializing them.
//
// Each live instance must be a distinct value of T. Pointer-typed factories
// satisfy this trivially; value-typed factories must not hand out duplicates
// while a previous instance is still pooled or borrowed.
type Factory[T comparable] interface {
	// Create produces a fresh value. A failure aborts the borrow that
	// triggered it and surfaces to the caller.
	Create(ctx context.Context) (T, error)

	// Destroy releases a value's resources. It is invoked at most once per
	// instance; failures are logged and never retried.
	Destroy(ctx context.Context, obj T) error
}

// Activator is an optional factory capability run when an object moves from
// idle to borrowed. A failure destroys the object and the borrow retries
// with another one.
type Activator[T comparable] interface {
	Activate(ctx context.Context, obj T) error
}

// Passivator is an optional factory capability run when an object moves from
// borrowed to idle. A failure destroys the object instead of re-registering it.
type Passivator[T comparable] interface {
	Passivate(ctx context.Context, obj T) error
}

// Validator is an optional factory capability consulted before hand-out when
// the pool is configured with ValidateOnBorrow. Objects failing validation
// are destroyed and replaced. Without this capability validation is skipped.
type Validator[T comparable] interface {
	Validate(ctx context.Context, obj T) bool
}

// ObjectMeta carries the identity and timing metadata the pool retains for an
// idle object independently of the object itself. When the runtime reclaims
// an idle referent before it is popped, the metadata is all that survives.
type ObjectMeta struct {
	// ID uniquely identifies the pooled instance across its lifetime.
	ID string
	// CreatedAt is when the factory produced the instance.
	CreatedAt time.Time
	// IdledAt is when the instance last entered the idle registry.
	IdledAt time.Time
}

// ReclaimListener is an optional factory capability notified when an idle
// object was reclaimed by the runtime before an explicit return or
// invalidate. The value itself is gone; the metadata lets the factory release
// side resources keyed by object identity.
type ReclaimListener interface {
	Reclaimed(meta ObjectMeta)
}
