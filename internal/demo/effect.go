package demo

import (
	"github.com/roach88/cruxgo/internal/capability"
	"github.com/roach88/cruxgo/internal/command"
)

// RenderRequest is a request to redraw.
type RenderRequest = command.Request[capability.RenderOperation, struct{}]

// Effect is the effect type of the app. Exactly one field is set.
type Effect struct {
	Render   *RenderRequest
	KeyValue *capability.KeyValueRequest
	Random   *capability.RandomRequest
}

func liftRender(r *RenderRequest) Effect { return Effect{Render: r} }
func liftKeyValue(r *capability.KeyValueRequest) Effect { return Effect{KeyValue: r} }
func liftRandom(r *capability.RandomRequest) Effect { return Effect{Random: r} }

// Kind names the variant.
func (e Effect) Kind() string {
	switch {
	case e.Render != nil:
		return "render"
	case e.KeyValue != nil:
		return "key_value"
	case e.Random != nil:
		return "random"
	}
	return ""
}

// Request returns the request the effect carries.
func (e Effect) Request() command.Resolvable {
	switch {
	case e.Render != nil:
		return e.Render
	case e.KeyValue != nil:
		return e.KeyValue
	case e.Random != nil:
		return e.Random
	}
	return nil
}

// NarrowKeyValue picks key-value requests for the key-value middleware.
func NarrowKeyValue(e Effect) (*capability.KeyValueRequest, bool) {
	return e.KeyValue, e.KeyValue != nil
}

// NarrowRandom picks random streams for the random middleware.
func NarrowRandom(e Effect) (*capability.RandomRequest, bool) {
	return e.Random, e.Random != nil
}

// ShellEffect is what remains for a shell once random streams are
// answered natively.
type ShellEffect struct {
	Render   *RenderRequest
	KeyValue *capability.KeyValueRequest
}

// ToShellEffect converts an effect that escaped the native middlewares.
// Random streams are always answered natively, so one reaching this point
// is a wiring bug and panics.
func ToShellEffect(e Effect) ShellEffect {
	switch {
	case e.Render != nil:
		return ShellEffect{Render: e.Render}
	case e.KeyValue != nil:
		return ShellEffect{KeyValue: e.KeyValue}
	}
	panic("demo: random effect reached the shell; it must be handled natively")
}

// Kind names the variant.
func (e ShellEffect) Kind() string {
	return Effect{Render: e.Render, KeyValue: e.KeyValue}.Kind()
}

// Request returns the request the effect carries.
func (e ShellEffect) Request() command.Resolvable {
	return Effect{Render: e.Render, KeyValue: e.KeyValue}.Request()
}
