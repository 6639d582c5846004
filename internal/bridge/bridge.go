package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/middleware"
	"github.com/roach88/cruxgo/internal/store"
)

// Effect is an effect that can be handed to a shell: it names its variant
// and exposes the request it carries.
type Effect interface {
	Kind() string
	Request() command.Resolvable
}

// Request is the wire form of an effect request.
type Request struct {
	ID           uint32 `json:"id"`
	Kind         string `json:"kind"`
	Multiplicity string `json:"multiplicity"`
	Operation    any    `json:"operation"`
}

// Recorder receives the request log of a bridge. *store.Store implements it.
type Recorder interface {
	Append(ctx context.Context, e store.Entry) error
}

// Option configures a Bridge.
type Option func(*config)

type config struct {
	codec    Codec
	recorder Recorder
	sessions SessionGenerator
	session  string
	seq      SequenceSource
	logger   *slog.Logger
}

// WithCodec sets the codec. Default: JSONCodec.
func WithCodec(c Codec) Option {
	return func(cfg *config) {
		cfg.codec = c
	}
}

// WithRecorder records events, requests and resolutions to r.
func WithRecorder(r Recorder) Option {
	return func(cfg *config) {
		cfg.recorder = r
	}
}

// WithSessionGenerator sets the generator for the session id.
// Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(cfg *config) {
		cfg.sessions = g
	}
}

// WithSession records into an existing session instead of generating a
// new id. Combine with WithSequence to continue after its last entry.
func WithSession(id string) Option {
	return func(cfg *config) {
		cfg.session = id
	}
}

// WithSequence sets the source of seq numbers. Default: NewSequence().
func WithSequence(s SequenceSource) Option {
	return func(cfg *config) {
		cfg.seq = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// Bridge serves a layer stack to a shell that exchanges bytes.
//
// Thread-safety: all methods are safe for concurrent use. Effects produced
// asynchronously by middlewares are buffered until ProcessTasks.
type Bridge[Ev any, Eff Effect, VM any] struct {
	layer    middleware.Layer[Ev, Eff, VM]
	codec    Codec
	registry *Registry
	recorder Recorder
	session  string
	seq      SequenceSource
	logger   *slog.Logger

	mu    sync.Mutex
	async []Eff
}

// New creates a bridge over layer.
func New[Ev any, Eff Effect, VM any](layer middleware.Layer[Ev, Eff, VM], opts ...Option) *Bridge[Ev, Eff, VM] {
	cfg := config{
		codec:    JSONCodec{},
		sessions: UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.session == "" {
		cfg.session = cfg.sessions.Generate()
	}
	if cfg.seq == nil {
		cfg.seq = NewSequence()
	}

	return &Bridge[Ev, Eff, VM]{
		layer:    layer,
		codec:    cfg.codec,
		registry: NewRegistry(),
		recorder: cfg.recorder,
		session:  cfg.session,
		seq:      cfg.seq,
		logger:   cfg.logger,
	}
}

// Session returns the session id stamped on recorded entries.
func (b *Bridge[Ev, Eff, VM]) Session() string {
	return b.session
}

// Pending returns the number of request ids the shell may still use.
func (b *Bridge[Ev, Eff, VM]) Pending() int {
	return b.registry.Len()
}

// Update decodes an event, runs it through the stack and returns the
// encoded requests for the shell.
func (b *Bridge[Ev, Eff, VM]) Update(ctx context.Context, event []byte) ([]byte, error) {
	var ev Ev
	if err := b.codec.Unmarshal(event, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	if n := b.registry.Evict(); n > 0 {
		b.logger.Debug("evicted request ids", "count", n)
	}

	b.record(ctx, store.KindEvent, 0, "", ev)

	effects := b.layer.Update(ev, b.collect)
	return b.issue(ctx, effects)
}

// Resolve decodes an output for the request registered under id, resolves
// it and returns the encoded follow-up requests.
//
// Ids of Once requests are released after a successful resolution. Ids
// whose request turned out stale (NotFound) or spent (AlreadyResolved)
// are released too. Errors carry the id in ResolveError.RequestID.
func (b *Bridge[Ev, Eff, VM]) Resolve(ctx context.Context, id uint32, output []byte) ([]byte, error) {
	req, err := b.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	out, err := req.DecodeOutput(func(target any) error {
		return b.codec.Unmarshal(output, target)
	})
	if err != nil {
		return nil, b.resolveFailed(id, req, err)
	}

	effects, err := b.layer.Resolve(req, out, b.collect)
	if err != nil {
		return nil, b.resolveFailed(id, req, err)
	}

	if req.Multiplicity() == command.Once {
		b.registry.Remove(id)
	}

	b.record(ctx, store.KindResolution, id, req.OperationName(), out)

	return b.issue(ctx, effects)
}

// View returns the encoded view model.
func (b *Bridge[Ev, Eff, VM]) View() ([]byte, error) {
	data, err := b.codec.Marshal(b.layer.View())
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	return data, nil
}

// ProcessTasks returns the encoded requests that became available since
// the last call without an Update or Resolve, including those produced by
// native middlewares in the background.
func (b *Bridge[Ev, Eff, VM]) ProcessTasks(ctx context.Context) ([]byte, error) {
	effects := b.layer.ProcessTasks(b.collect)

	b.mu.Lock()
	pending := b.async
	b.async = nil
	b.mu.Unlock()

	return b.issue(ctx, append(pending, effects...))
}

// Close shuts the layer stack down. Outstanding ids become stale.
func (b *Bridge[Ev, Eff, VM]) Close() {
	b.layer.Close()
}

// collect buffers effects delivered asynchronously by the layer stack.
func (b *Bridge[Ev, Eff, VM]) collect(effects []Eff) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.async = append(b.async, effects...)
}

func (b *Bridge[Ev, Eff, VM]) issue(ctx context.Context, effects []Eff) ([]byte, error) {
	requests := make([]Request, 0, len(effects))
	for _, eff := range effects {
		req := eff.Request()
		id := b.registry.Register(req)

		b.record(ctx, store.KindRequest, id, req.OperationName(), req.OperationValue())

		requests = append(requests, Request{
			ID:           id,
			Kind:         eff.Kind(),
			Multiplicity: req.Multiplicity().String(),
			Operation:    req.OperationValue(),
		})
	}

	data, err := b.codec.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("encode requests: %w", err)
	}
	return data, nil
}

func (b *Bridge[Ev, Eff, VM]) resolveFailed(id uint32, req command.Resolvable, err error) error {
	switch command.CodeOf(err) {
	case command.ErrCodeNotFound, command.ErrCodeAlreadyResolved:
		b.registry.Remove(id)
	}

	b.logger.Debug("resolve failed",
		"request", id,
		"op", req.OperationName(),
		"error", err,
	)

	var re *command.ResolveError
	if errors.As(err, &re) {
		return re.WithRequestID(id)
	}
	return err
}

// record appends an entry to the request log. Recording failures are
// logged and never fail the call that caused them.
func (b *Bridge[Ev, Eff, VM]) record(ctx context.Context, kind store.EntryKind, id uint32, op string, payload any) {
	if b.recorder == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to encode log entry",
			"kind", kind,
			"request", id,
			"error", err,
		)
		return
	}

	entry := store.Entry{
		Session:   b.session,
		Seq:       b.seq.Next(),
		Kind:      kind,
		RequestID: id,
		Operation: op,
		Payload:   data,
	}
	if err := b.recorder.Append(ctx, entry); err != nil {
		b.logger.Warn("failed to record log entry",
			"kind", kind,
			"seq", entry.Seq,
			"error", err,
		)
	}
}
