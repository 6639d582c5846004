package demo

import (
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/cruxgo/internal/capability"
	"github.com/roach88/cruxgo/internal/core"
	"github.com/roach88/cruxgo/internal/middleware"
)

// StackConfig selects the native middlewares of a stack.
type StackConfig struct {
	// Worker runs middleware jobs. Required.
	Worker *capability.Worker

	// KeyValue answers key-value requests natively. If nil they reach the
	// shell.
	KeyValue capability.KeyValueStore

	// Random answers random streams. Default: a randomly seeded source.
	Random *capability.RandomSource

	// Logger is passed to the middleware layers. Default: slog.Default().
	Logger *slog.Logger
}

// NewStack wraps c in the native middlewares selected by cfg and converts
// the remaining effects to ShellEffect.
func NewStack(c *core.Core[Event, Model, ViewModel, Effect], cfg StackConfig) middleware.Layer[Event, ShellEffect, ViewModel] {
	if cfg.Random == nil {
		cfg.Random = capability.NewRandomSource(rand.Uint64())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []middleware.HandleOption{middleware.WithLogger(cfg.Logger)}

	var layer middleware.Layer[Event, Effect, ViewModel] = middleware.FromCore(c)
	if cfg.KeyValue != nil {
		kv := capability.NewKeyValueMiddleware(cfg.KeyValue, cfg.Worker, NarrowKeyValue)
		layer = middleware.HandleEffects(layer, middleware.EffectMiddleware[Effect, capability.KeyValueOperation, capability.KeyValueResult](kv), opts...)
	}
	random := capability.NewRandomMiddleware(cfg.Random, cfg.Worker, NarrowRandom)
	layer = middleware.HandleEffects(layer, middleware.EffectMiddleware[Effect, capability.RandomOperation, capability.RandomNumber](random), opts...)

	return middleware.MapEffect(layer, ToShellEffect)
}
