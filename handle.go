package softpool

import (
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"
)

// pooled boxes a caller-visible value together with its pool-side identity.
// The box is strongly held while the object is borrowed or mid-transition and
// only weakly held while idle, which is what makes idle objects collectable
// under memory pressure.
type pooled[T comparable] struct {
	value     T
	id        string
	createdAt time.Time
	destroyed atomic.Bool
}

func newPooled[T comparable](value T) *pooled[T] {
	return &pooled[T]{
		value:     value,
		id:        uuid.NewString(),
		createdAt: time.Now(),
	}
}

// handle is a possibly-dangling reference to an idle object plus the metadata
// needed for cleanup if the referent vanishes before resolve.
type handle[T comparable] struct {
	ref  weak.Pointer[pooled[T]]
	meta ObjectMeta
}

func newHandle[T comparable](obj *pooled[T]) *handle[T] {
	return &handle[T]{
		ref: weak.Make(obj),
		meta: ObjectMeta{
			ID:        obj.id,
			CreatedAt: obj.createdAt,
			IdledAt:   time.Now(),
		},
	}
}

// resolve promotes the weak reference to an owning one. A nil result means
// the runtime reclaimed the referent; that is an expected outcome, not an
// error.
func (h *handle[T]) resolve() (*pooled[T], bool) {
	obj := h.ref.Value()
	return obj, obj != nil
}

// registry is the idle-object store: a mutex-guarded LIFO stack of handles.
// Most-recently-idled objects are popped first, so long-cold handles whose
// referents were likely already reclaimed sink to the bottom.
type registry[T comparable] struct {
	mu      sync.Mutex
	handles []*handle[T]
}

func (r *registry[T]) push(h *handle[T]) {
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
}

func (r *registry[T]) pop() (*handle[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handles)
	if n == 0 {
		return nil, false
	}
	h := r.handles[n-1]
	r.handles[n-1] = nil
	r.handles = r.handles[:n-1]
	return h, true
}

func (r *registry[T]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// drain atomically empties the registry and returns the removed handles.
func (r *registry[T]) drain() []*handle[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.handles
	r.handles = nil
	return drained
}

// remove deletes and returns the newest handle whose resolved object matches
// the predicate. Handles with reclaimed referents are left in place for the
// borrow path to collect.
func (r *registry[T]) remove(match func(*pooled[T]) bool) (*pooled[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.handles) - 1; i >= 0; i-- {
		obj, ok := r.handles[i].resolve()
		if !ok || !match(obj) {
			continue
		}
		r.handles = append(r.handles[:i], r.handles[i+1:]...)
		return obj, true
	}
	return nil, false
}
