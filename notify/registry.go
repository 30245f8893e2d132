package notify

import (
	"cmp"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handle is the opaque token returned by Subscribe and used to Unsubscribe that exact registration.
//
// Handles are compared by identity: two registrations of the same Observer get distinct handles.
// The zero Handle is never issued.
type Handle struct {
	id uint64
}

// IsZero reports whether h is the zero Handle, which never identifies a subscription.
func (h Handle) IsZero() bool {
	return h.id == 0
}

// String returns a log-friendly representation of the Handle.
func (h Handle) String() string {
	return "subscription-" + strconv.FormatUint(h.id, 10)
}

// Subscription is one (Handle, Observer) pair of the Registry.
type Subscription struct {
	Handle   Handle
	Observer Observer
}

// Registry owns the ordered set of active subscriptions.
//
// The current subscriptions are kept as an immutable slice that is replaced, never modified,
// on every Subscribe and Unsubscribe. Writers are serialized by a mutex; Snapshot is a single
// atomic load, so snapshot reads never block each other or writers.
//
// The zero value is ready to use.
type Registry struct {
	mu            sync.Mutex
	lastID        uint64
	subscriptions atomic.Pointer[[]Subscription]

	// onChange receives the subscription count after each effective mutation, while mu is held.
	onChange func(count int)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe appends observer to the end of the delivery order and returns a fresh, never reused Handle.
// Subscribing the same Observer twice yields two independent subscriptions.
func (r *Registry) Subscribe(observer Observer) (Handle, error) {
	if isNilObserver(observer) {
		return Handle{}, ErrNilObserver
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	handle := Handle{id: r.lastID}

	current := r.load()
	next := make([]Subscription, len(current), len(current)+1)
	copy(next, current)
	next = append(next, Subscription{Handle: handle, Observer: observer})
	r.store(next)

	return handle, nil
}

// Unsubscribe removes the subscription for handle.
// Unknown, zero and already removed handles are a no-op, so it is safe to call repeatedly,
// concurrently and from within an Observer's Update.
func (r *Registry) Unsubscribe(handle Handle) {
	if handle.IsZero() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	idx, found := indexOf(current, handle)
	if !found {
		return
	}

	next := make([]Subscription, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	r.store(next)
}

// Snapshot returns the ordered subscriptions as of this instant.
// Later Subscribe and Unsubscribe calls do not affect the returned Snapshot.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{subscriptions: r.load()}
}

// Lookup returns the Observer currently registered for handle.
func (r *Registry) Lookup(handle Handle) (Observer, bool) {
	current := r.load()

	idx, found := indexOf(current, handle)
	if !found {
		return nil, false
	}

	return current[idx].Observer, true
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return len(r.load())
}

// store must be called with mu held.
func (r *Registry) store(next []Subscription) {
	r.subscriptions.Store(&next)

	if r.onChange != nil {
		r.onChange(len(next))
	}
}

func (r *Registry) load() []Subscription {
	if current := r.subscriptions.Load(); current != nil {
		return *current
	}

	return nil
}

// indexOf relies on handles being issued in increasing order and removals keeping survivors in order,
// which keeps the slice sorted by handle id.
func indexOf(subscriptions []Subscription, handle Handle) (int, bool) {
	return slices.BinarySearchFunc(subscriptions, handle.id, func(s Subscription, id uint64) int {
		return cmp.Compare(s.Handle.id, id)
	})
}
