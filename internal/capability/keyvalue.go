package capability

import (
	"context"
	"fmt"

	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/middleware"
)

// Key-value actions.
const (
	ActionGet    = "get"
	ActionSet    = "set"
	ActionDelete = "delete"
)

// KeyValueOperation reads or writes one key.
type KeyValueOperation struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
}

// OperationName implements command.Operation.
func (KeyValueOperation) OperationName() string { return "key_value" }

// KeyValueResult is the output of a KeyValueOperation. Store failures are
// reported in Error rather than failing the request, so the app decides
// what a failed read means.
type KeyValueResult struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

// KeyValueRequest is a request for a key-value operation.
type KeyValueRequest = command.Request[KeyValueOperation, KeyValueResult]

// Get reads key.
func Get[Eff, Ev any](key string, lift func(*KeyValueRequest) Eff) *command.RequestBuilder[Eff, Ev, KeyValueResult] {
	return command.RequestFromShell[Eff, Ev](KeyValueOperation{Action: ActionGet, Key: key}, lift)
}

// Set writes value under key.
func Set[Eff, Ev any](key, value string, lift func(*KeyValueRequest) Eff) *command.RequestBuilder[Eff, Ev, KeyValueResult] {
	return command.RequestFromShell[Eff, Ev](KeyValueOperation{Action: ActionSet, Key: key, Value: value}, lift)
}

// Delete removes key. Found reports whether it existed.
func Delete[Eff, Ev any](key string, lift func(*KeyValueRequest) Eff) *command.RequestBuilder[Eff, Ev, KeyValueResult] {
	return command.RequestFromShell[Eff, Ev](KeyValueOperation{Action: ActionDelete, Key: key}, lift)
}

// KeyValueStore is the storage behind the key-value middleware.
// *store.Store implements it.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) (bool, error)
}

// ExecuteKeyValue runs op against kv.
func ExecuteKeyValue(ctx context.Context, kv KeyValueStore, op KeyValueOperation) KeyValueResult {
	switch op.Action {
	case ActionGet:
		value, found, err := kv.Get(ctx, op.Key)
		if err != nil {
			return KeyValueResult{Error: err.Error()}
		}
		return KeyValueResult{Value: value, Found: found}
	case ActionSet:
		if err := kv.Set(ctx, op.Key, op.Value); err != nil {
			return KeyValueResult{Error: err.Error()}
		}
		return KeyValueResult{Value: op.Value, Found: true}
	case ActionDelete:
		found, err := kv.Delete(ctx, op.Key)
		if err != nil {
			return KeyValueResult{Error: err.Error()}
		}
		return KeyValueResult{Found: found}
	default:
		return KeyValueResult{Error: fmt.Sprintf("unknown key-value action %q", op.Action)}
	}
}

// NewKeyValueMiddleware answers key-value requests from kv on w. narrow
// picks key-value requests out of the app's effect type.
func NewKeyValueMiddleware[Eff any](kv KeyValueStore, w *Worker, narrow func(Eff) (*KeyValueRequest, bool)) middleware.MiddlewareFunc[Eff, KeyValueOperation, KeyValueResult] {
	return middleware.MiddlewareFunc[Eff, KeyValueOperation, KeyValueResult]{
		Narrow: narrow,
		Handle: func(op KeyValueOperation, resolve func(KeyValueResult)) {
			w.Go(func(ctx context.Context) error {
				resolve(ExecuteKeyValue(ctx, kv, op))
				return nil
			})
		},
	}
}
