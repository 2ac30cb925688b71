package softpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/coachpo/softpool/config"
	"github.com/coachpo/softpool/errs"
	"github.com/coachpo/softpool/observability"
)

// Pool lends out factory-created values and keeps idle ones only weakly
// reachable, so the runtime may reclaim them under memory pressure before an
// explicit return. The pool is unbounded and prefers LIFO reuse.
//
// An object is owned by exactly one actor at a time: the pool while idle, the
// borrower while checked out. Return on an object the pool does not recognize
// as borrowed is a hard not_borrowed error.
type Pool[T comparable] struct {
	name     string
	settings config.Settings
	factory  Factory[T]

	activator  Activator[T]
	passivator Passivator[T]
	validator  Validator[T]
	listener   ReclaimListener

	idle registry[T]

	mu       sync.Mutex
	borrowed map[T]*pooled[T]

	limiter *rate.Limiter
	closed  atomic.Bool

	log     observability.Logger
	metrics observability.Metrics

	created   atomic.Uint64
	destroyed atomic.Uint64
	reclaimed atomic.Uint64
	borrows   atomic.Uint64
	returns   atomic.Uint64
}

// Option configures optional pool collaborators.
type Option[T comparable] func(*Pool[T])

// WithLogger overrides the process-global logger for this pool.
func WithLogger[T comparable](logger observability.Logger) Option[T] {
	return func(p *Pool[T]) {
		if logger != nil {
			p.log = logger
		}
	}
}

// WithMetrics overrides the process-global metrics collector for this pool.
func WithMetrics[T comparable](metrics observability.Metrics) Option[T] {
	return func(p *Pool[T]) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// New constructs a pool serving values from the provided factory. Optional
// factory capabilities (Activator, Passivator, Validator, ReclaimListener)
// are detected by type assertion.
func New[T comparable](factory Factory[T], settings config.Settings, opts ...Option[T]) (*Pool[T], error) {
	if factory == nil {
		return nil, errs.New(settings.Name, errs.CodeInvalid, errs.WithMessage("factory must be provided"))
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	p := new(Pool[T])
	p.name = settings.Name
	p.settings = settings
	p.factory = factory
	p.borrowed = make(map[T]*pooled[T])
	p.log = observability.Log()
	p.metrics = observability.Telemetry()

	if a, ok := factory.(Activator[T]); ok {
		p.activator = a
	}
	if pv, ok := factory.(Passivator[T]); ok {
		p.passivator = pv
	}
	if v, ok := factory.(Validator[T]); ok {
		p.validator = v
	}
	if l, ok := factory.(ReclaimListener); ok {
		p.listener = l
	}

	if settings.CreateRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(settings.CreateRate), settings.CreateBurst)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Borrow hands out an idle object or a freshly created one. Stale handles
// whose referents were reclaimed are skipped transparently. Activation and
// validation failures destroy the candidate and retry with another object;
// only creation failure, a spent retry budget, context expiry, or a closed
// pool surface to the caller.
func (p *Pool[T]) Borrow(ctx context.Context) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if p.closed.Load() {
		return zero, errs.New(p.name, errs.CodeClosed)
	}

	backoffCfg := backoff.NewExponentialBackOff()
	if p.settings.RetryInitialInterval > 0 {
		backoffCfg.InitialInterval = p.settings.RetryInitialInterval
	}
	if p.settings.RetryMaxInterval > 0 {
		backoffCfg.MaxInterval = p.settings.RetryMaxInterval
	}
	backoffCfg.Reset()

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("borrow: %w", err)
		}
		if p.closed.Load() {
			return zero, errs.New(p.name, errs.CodeClosed)
		}

		value, err := p.attempt(ctx)
		if err == nil {
			return value, nil
		}
		if !retryable(err) {
			return zero, err
		}

		attempts++
		if limit := p.settings.MaxBorrowAttempts; limit > 0 && attempts >= limit {
			return zero, errs.New(p.name, errs.CodeExhausted,
				errs.WithMessage("borrow retry budget exhausted"),
				errs.WithCause(err))
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("borrow: %w", ctx.Err())
		case <-time.After(backoffCfg.NextBackOff()):
		}
	}
}

// attempt performs one acquire-activate-validate cycle.
func (p *Pool[T]) attempt(ctx context.Context) (T, error) {
	var zero T

	obj, err := p.acquire(ctx)
	if err != nil {
		return zero, err
	}

	if p.activator != nil {
		if err := p.activator.Activate(ctx, obj.value); err != nil {
			p.destroyObject(ctx, obj, "activate failed")
			return zero, errs.New(p.name, errs.CodeActivation,
				errs.WithObjectID(obj.id), errs.WithCause(err))
		}
	}
	if p.settings.ValidateOnBorrow && p.validator != nil {
		if !p.validator.Validate(ctx, obj.value) {
			p.destroyObject(ctx, obj, "validation rejected")
			return zero, errs.New(p.name, errs.CodeValidation, errs.WithObjectID(obj.id))
		}
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		p.destroyObject(ctx, obj, "pool closed during borrow")
		return zero, errs.New(p.name, errs.CodeClosed)
	}
	p.borrowed[obj.value] = obj
	active := len(p.borrowed)
	p.mu.Unlock()

	p.borrows.Add(1)
	p.metrics.IncCounter("softpool_borrows_total", 1, p.labels())
	p.metrics.SetGauge("softpool_active", float64(active), p.labels())
	return obj.value, nil
}

// acquire pops idle handles until one resolves, then falls back to creating a
// fresh object. Reclaimed handles cost nothing: they are discarded without
// consuming a borrow attempt.
func (p *Pool[T]) acquire(ctx context.Context) (*pooled[T], error) {
	for {
		h, ok := p.idle.pop()
		if !ok {
			break
		}
		if obj, live := h.resolve(); live {
			return obj, nil
		}
		p.noteReclaimed(h.meta)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, errs.New(p.name, errs.CodeExhausted,
				errs.WithMessage("create rate limiter"), errs.WithCause(err))
		}
	}
	value, err := p.factory.Create(ctx)
	if err != nil {
		cause := errs.New(p.name, errs.CodeCreation, errs.WithCause(err))
		return nil, errs.New(p.name, errs.CodeExhausted,
			errs.WithMessage("factory create failed and no idle object available"),
			errs.WithCause(cause))
	}
	p.created.Add(1)
	p.metrics.IncCounter("softpool_creates_total", 1, p.labels())
	return newPooled(value), nil
}

// Return passes the object back to the pool. Passivation failure destroys the
// object silently instead of re-registering it; after Close the object is
// destroyed so in-flight borrows cannot leak resources.
func (p *Pool[T]) Return(ctx context.Context, value T) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	obj, ok := p.borrowed[value]
	if !ok {
		p.mu.Unlock()
		return errs.New(p.name, errs.CodeNotBorrowed,
			errs.WithMessage("object not currently borrowed from this pool"))
	}
	delete(p.borrowed, value)
	p.mu.Unlock()

	p.returns.Add(1)
	p.metrics.IncCounter("softpool_returns_total", 1, p.labels())

	if p.closed.Load() {
		p.destroyObject(ctx, obj, "returned after close")
		return nil
	}

	if p.passivator != nil {
		if err := p.passivator.Passivate(ctx, obj.value); err != nil {
			p.log.Error("passivate failed, dropping object",
				observability.Field{Key: "pool", Value: p.name},
				observability.Field{Key: "object", Value: obj.id},
				observability.Field{Key: "code", Value: string(errs.CodePassivation)},
				observability.Field{Key: "error", Value: err.Error()})
			p.destroyObject(ctx, obj, "passivate failed")
			return nil
		}
	}

	p.idle.push(newHandle(obj))
	if p.closed.Load() {
		// Close raced the re-registration; sweep the registry again so the
		// object is destroyed rather than stranded.
		p.clearIdle(ctx)
		return nil
	}
	p.metrics.SetGauge("softpool_idle", float64(p.idle.size()), p.labels())
	return nil
}

// Invalidate declares the object unusable. It covers borrowed objects and,
// when the value is still resolvable, idle ones. The object is destroyed at
// most once and never re-registered.
func (p *Pool[T]) Invalidate(ctx context.Context, value T) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	obj, ok := p.borrowed[value]
	if ok {
		delete(p.borrowed, value)
	}
	p.mu.Unlock()

	if ok {
		p.destroyObject(ctx, obj, "invalidated by caller")
		return nil
	}

	if obj, found := p.idle.remove(func(c *pooled[T]) bool { return c.value == value }); found {
		p.destroyObject(ctx, obj, "invalidated while idle")
		return nil
	}

	return errs.New(p.name, errs.CodeNotBorrowed,
		errs.WithMessage("object not tracked by this pool"))
}

// Clear drains the idle registry and destroys every resolvable object.
// Borrowed objects are unaffected and concurrent borrows keep creating fresh
// objects while the drain runs.
func (p *Pool[T]) Clear(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.clearIdle(ctx)
	p.metrics.SetGauge("softpool_idle", 0, p.labels())
}

func (p *Pool[T]) clearIdle(ctx context.Context) {
	handles := p.idle.drain()
	if len(handles) == 0 {
		return
	}
	workers := concpool.New().WithMaxGoroutines(p.settings.DestroyConcurrency)
	for _, h := range handles {
		workers.Go(func() {
			if obj, live := h.resolve(); live {
				p.destroyObject(ctx, obj, "cleared")
			} else {
				p.noteReclaimed(h.meta)
			}
		})
	}
	workers.Wait()
}

// Close clears the idle registry and permanently rejects further borrows.
// Calling Close again is a no-op. Objects still borrowed are destroyed when
// their holders return or invalidate them.
func (p *Pool[T]) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.clearIdle(ctx)

	if active := p.NumActive(); active > 0 {
		p.log.Info("pool closed with objects in flight",
			observability.Field{Key: "pool", Value: p.name},
			observability.Field{Key: "active", Value: active})
	}
	return nil
}

// Size reports the current idle count. Reclaimed-but-unpopped handles are
// still counted, so the value is an upper bound on truly reusable objects.
func (p *Pool[T]) Size() int {
	return p.idle.size()
}

// NumActive reports the exact number of currently borrowed objects.
func (p *Pool[T]) NumActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.borrowed)
}

// destroyObject retires a pooled instance at most once. Destroy failures are
// logged and swallowed: there is no safe recovery action.
func (p *Pool[T]) destroyObject(ctx context.Context, obj *pooled[T], reason string) {
	if obj.destroyed.Swap(true) {
		return
	}
	if err := p.factory.Destroy(ctx, obj.value); err != nil {
		p.log.Error("destroy failed",
			observability.Field{Key: "pool", Value: p.name},
			observability.Field{Key: "object", Value: obj.id},
			observability.Field{Key: "reason", Value: reason},
			observability.Field{Key: "error", Value: err.Error()})
	}
	p.destroyed.Add(1)
	p.metrics.IncCounter("softpool_destroys_total", 1, p.labels())
}

// noteReclaimed records that an idle referent vanished before resolve and
// forwards the surviving metadata to the factory's reclaim listener.
func (p *Pool[T]) noteReclaimed(meta ObjectMeta) {
	p.reclaimed.Add(1)
	p.metrics.IncCounter("softpool_reclaimed_total", 1, p.labels())
	p.log.Debug("idle object reclaimed by runtime",
		observability.Field{Key: "pool", Value: p.name},
		observability.Field{Key: "object", Value: meta.ID})
	if p.listener != nil {
		p.listener.Reclaimed(meta)
	}
}

func (p *Pool[T]) labels() map[string]string {
	return map[string]string{"pool": p.name}
}

func retryable(err error) bool {
	switch errs.CodeOf(err) {
	case errs.CodeActivation, errs.CodeValidation:
		return true
	default:
		return false
	}
}
