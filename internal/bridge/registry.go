package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/cruxgo/internal/command"
)

// Registry maps the ids handed to a shell to pending requests.
//
// Ids come from a monotonic counter and are never reused within a
// registry, so a stale id can never address a newer request.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	next atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]command.Resolvable
	never   []uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[uint32]command.Resolvable)}
}

// Register stores req and returns its id.
func (r *Registry) Register(req command.Resolvable) uint32 {
	id := r.next.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = req
	if req.Multiplicity() == command.Never {
		r.never = append(r.never, id)
	}
	return id
}

// Lookup returns the request registered under id. Unknown ids fail with
// NotFound.
func (r *Registry) Lookup(id uint32) (command.Resolvable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[id]
	if !ok {
		return nil, &command.ResolveError{
			Code:      command.ErrCodeNotFound,
			Message:   "no pending request with this id",
			RequestID: id,
		}
	}
	return req, nil
}

// Remove forgets id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Evict forgets all notification ids, and the ids of requests that can no
// longer be resolved because their command was cancelled or aborted, or
// because they were resolved behind the registry's back. It returns how
// many ids were forgotten.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.never {
		if _, ok := r.pending[id]; ok {
			delete(r.pending, id)
			n++
		}
	}
	r.never = r.never[:0]

	for id, req := range r.pending {
		switch command.CodeOf(req.CanResolve()) {
		case command.ErrCodeNotFound, command.ErrCodeAlreadyResolved:
			delete(r.pending, id)
			n++
		}
	}
	return n
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
