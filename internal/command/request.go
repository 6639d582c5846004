package command

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Multiplicity is the number of times a request may be resolved.
type Multiplicity int

const (
	// Never marks a notification. There is no continuation to resume.
	Never Multiplicity = iota
	// Once marks a request/response effect.
	Once
	// Many marks a stream. Each resolution delivers one more value.
	Many
)

// String returns the wire name of the multiplicity.
func (m Multiplicity) String() string {
	switch m {
	case Never:
		return "never"
	case Once:
		return "once"
	case Many:
		return "many"
	default:
		return fmt.Sprintf("Multiplicity(%d)", int(m))
	}
}

// Operation is implemented by operation values that want a stable name in
// logs and recorded request logs. Operations that do not implement it are
// named by their Go type.
type Operation interface {
	OperationName() string
}

// Resolver delivers outputs to the continuation awaiting a request.
//
// One-shot enforcement uses an atomic counter: the first Once resolution
// wins the CAS, every later one fails without touching the continuation.
type Resolver[Out any] struct {
	kind  Multiplicity
	used  atomic.Uint32
	sched *scheduler
	scope *scope
	k     func(Out)
}

func newResolver[Out any](kind Multiplicity, sched *scheduler, sc *scope, k func(Out)) *Resolver[Out] {
	return &Resolver[Out]{kind: kind, sched: sched, scope: sc, k: k}
}

// check reports why the resolver cannot accept an output, without consuming it.
func (r *Resolver[Out]) check() *ResolveError {
	switch {
	case r.kind == Never:
		return &ResolveError{Code: ErrCodeResolveNever, Message: "notification has no continuation"}
	case r.scope.cancelled():
		return &ResolveError{Code: ErrCodeNotFound, Message: "request was cancelled"}
	case r.kind == Once && r.used.Load() != 0:
		return &ResolveError{Code: ErrCodeAlreadyResolved, Message: "request already resolved"}
	}
	return nil
}

func (r *Resolver[Out]) resolve(out Out) *ResolveError {
	if err := r.check(); err != nil {
		return err
	}
	if r.kind == Once && !r.used.CompareAndSwap(0, 1) {
		return &ResolveError{Code: ErrCodeAlreadyResolved, Message: "request already resolved"}
	}

	if r.sched == nil {
		r.k(out)
		return nil
	}

	k := r.k
	r.sched.push(r.scope, func() { k(out) })
	r.sched.run()
	return nil
}

// Request couples an operation value with the resolver of its output.
//
// Identity is the pointer: two requests for equal operations are distinct
// occurrences.
type Request[Op, Out any] struct {
	Operation Op

	resolver *Resolver[Out]
}

// NewRequest creates a request outside of any command. Resolving it calls
// k directly on the resolving goroutine.
func NewRequest[Op, Out any](op Op, m Multiplicity, k func(Out)) *Request[Op, Out] {
	if k == nil {
		k = func(Out) {}
	}
	return &Request[Op, Out]{
		Operation: op,
		resolver:  newResolver(m, nil, nil, k),
	}
}

func newRequest[Op, Out any](op Op, m Multiplicity, sched *scheduler, sc *scope, k func(Out)) *Request[Op, Out] {
	return &Request[Op, Out]{
		Operation: op,
		resolver:  newResolver(m, sched, sc, k),
	}
}

// Resolve delivers out to the awaiting continuation and drives the owning
// command until it can make no more progress. If the command is hosted,
// the continuation is queued for the host instead.
func (r *Request[Op, Out]) Resolve(out Out) error {
	if err := r.resolver.resolve(out); err != nil {
		err.Operation = r.OperationName()
		return err
	}
	return nil
}

// Multiplicity returns how often the request may be resolved.
func (r *Request[Op, Out]) Multiplicity() Multiplicity {
	return r.resolver.kind
}

// OperationValue returns the operation as an untyped value.
func (r *Request[Op, Out]) OperationValue() any {
	return r.Operation
}

// OperationName returns the operation's name.
func (r *Request[Op, Out]) OperationName() string {
	if named, ok := any(r.Operation).(Operation); ok {
		return named.OperationName()
	}
	return fmt.Sprintf("%T", r.Operation)
}

// OutputType returns the Go type the request must be resolved with.
func (r *Request[Op, Out]) OutputType() reflect.Type {
	return reflect.TypeFor[Out]()
}

// CanResolve returns the error a resolution would fail with right now, or
// nil if the request accepts an output.
func (r *Request[Op, Out]) CanResolve() error {
	if err := r.resolver.check(); err != nil {
		err.Operation = r.OperationName()
		return err
	}
	return nil
}

// ResolveValue resolves the request with an untyped output. It fails with
// OutputMismatch if out is not of the request's output type.
func (r *Request[Op, Out]) ResolveValue(out any) error {
	if r.resolver.kind == Never {
		return r.Resolve(*new(Out))
	}
	typed, ok := out.(Out)
	if !ok {
		return &ResolveError{
			Code:      ErrCodeOutputMismatch,
			Message:   fmt.Sprintf("expected %s, got %T", r.OutputType(), out),
			Operation: r.OperationName(),
		}
	}
	return r.Resolve(typed)
}

// DecodeOutput builds an output value of the request's output type by
// calling decode with a pointer to it. Decoding failures are reported as
// OutputMismatch. The request's state is checked first so a stale request
// reports NotFound or AlreadyResolved regardless of the payload.
func (r *Request[Op, Out]) DecodeOutput(decode func(target any) error) (any, error) {
	if err := r.CanResolve(); err != nil {
		return nil, err
	}
	var out Out
	if err := decode(&out); err != nil {
		return nil, &ResolveError{
			Code:      ErrCodeOutputMismatch,
			Message:   fmt.Sprintf("cannot decode output as %s", r.OutputType()),
			Operation: r.OperationName(),
			Err:       err,
		}
	}
	return out, nil
}

// Resolvable is the type-erased view of a Request used by layers, bridges
// and shells that handle effects of many operation types.
type Resolvable interface {
	Multiplicity() Multiplicity
	OperationValue() any
	OperationName() string
	OutputType() reflect.Type
	CanResolve() error
	ResolveValue(out any) error
	DecodeOutput(decode func(target any) error) (any, error)
}

var _ Resolvable = (*Request[struct{}, struct{}])(nil)
