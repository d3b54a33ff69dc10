package instance

import (
	"context"
	"errors"
	"sync"
)

// ErrNestedBinding is a programming error: WithInstance was re-entered on
// the same router from inside an active binding's callback. Nesting would
// reintroduce the shared-mutable-client problem the router exists to solve.
var ErrNestedBinding = errors.New("instance: nested WithInstance on the same router")

// bindingKey marks a context as belonging to an active WithInstance
// callback. The value is the owning *Router, so bindings on different
// routers never interfere.
type bindingKey struct{}

// Router binds operations to one configured instance at a time.
//
// Each WithInstance invocation hands the callback its own resolved Instance
// value; callers construct per-call clients from it rather than mutating a
// process-global client. Select changes only the ambient default used when
// an operation names no instance — it never touches instance data.
type Router struct {
	store *Store

	mu       sync.Mutex
	selected string // empty means "use the store default"
}

// NewRouter creates a Router over the given store.
func NewRouter(store *Store) *Router {
	return &Router{store: store}
}

// Resolve returns the named instance, or the ambient default when name is
// empty. A missing name fails synchronously with *NotFoundError — no
// network call is ever attempted for an unknown instance.
func (r *Router) Resolve(name string) (Instance, error) {
	if name != "" {
		return r.store.Get(name)
	}
	r.mu.Lock()
	selected := r.selected
	r.mu.Unlock()
	if selected != "" {
		return r.store.Get(selected)
	}
	return r.store.Default(), nil
}

// Select changes the ambient default instance for subsequent operations
// that name no instance. The store's load-time default is untouched.
func (r *Router) Select(name string) (Instance, error) {
	inst, err := r.store.Get(name)
	if err != nil {
		return Instance{}, err
	}
	r.mu.Lock()
	r.selected = name
	r.mu.Unlock()
	return inst, nil
}

// Active returns the instance operations run against when none is named.
func (r *Router) Active() Instance {
	inst, err := r.Resolve("")
	if err != nil {
		// Selected name vanished from a read-only store — cannot happen.
		return r.store.Default()
	}
	return inst
}

// WithInstance resolves name (or the ambient default when empty) and runs
// fn against that instance. The binding is scoped: fn receives its own
// Instance value, and the ambient default is restored-by-construction —
// it was never changed.
//
// Bindings on the same router may overlap freely — the protocol host
// dispatches tool calls concurrently, and an operation on instance A
// sitting in its settle wait must not block one on instance B. Only true
// re-entrancy is rejected: calling WithInstance from inside fn, detected
// through fn's context, returns ErrNestedBinding.
func (r *Router) WithInstance(ctx context.Context, name string, fn func(context.Context, Instance) error) error {
	inst, err := r.Resolve(name)
	if err != nil {
		return err
	}
	if bound, _ := ctx.Value(bindingKey{}).(*Router); bound == r {
		return ErrNestedBinding
	}
	return fn(context.WithValue(ctx, bindingKey{}, r), inst)
}
