package middleware

import "github.com/roach88/cruxgo/internal/command"

// MapEffectLayer converts the effects of the wrapped layer to another
// effect type. It resolves nothing itself.
type MapEffectLayer[Ev, From, To, VM any] struct {
	inner Layer[Ev, From, VM]
	f     func(From) To
}

// MapEffect wraps inner and converts its effects with f. f may panic for
// effect variants the caller has declared impossible at this point of the
// stack.
func MapEffect[Ev, From, To, VM any](inner Layer[Ev, From, VM], f func(From) To) *MapEffectLayer[Ev, From, To, VM] {
	return &MapEffectLayer[Ev, From, To, VM]{inner: inner, f: f}
}

// Update implements Layer.
func (l *MapEffectLayer[Ev, From, To, VM]) Update(ev Ev, cb func([]To)) []To {
	return l.mapAll(l.inner.Update(ev, l.mapCallback(cb)))
}

// Resolve implements Layer.
func (l *MapEffectLayer[Ev, From, To, VM]) Resolve(req command.Resolvable, out any, cb func([]To)) ([]To, error) {
	effects, err := l.inner.Resolve(req, out, l.mapCallback(cb))
	if err != nil {
		return nil, err
	}
	return l.mapAll(effects), nil
}

// View implements Layer.
func (l *MapEffectLayer[Ev, From, To, VM]) View() VM {
	return l.inner.View()
}

// ProcessTasks implements Layer.
func (l *MapEffectLayer[Ev, From, To, VM]) ProcessTasks(cb func([]To)) []To {
	return l.mapAll(l.inner.ProcessTasks(l.mapCallback(cb)))
}

// Close implements Layer.
func (l *MapEffectLayer[Ev, From, To, VM]) Close() {
	l.inner.Close()
}

func (l *MapEffectLayer[Ev, From, To, VM]) mapCallback(cb func([]To)) func([]From) {
	return func(effects []From) {
		if cb == nil {
			return
		}
		if mapped := l.mapAll(effects); len(mapped) > 0 {
			cb(mapped)
		}
	}
}

func (l *MapEffectLayer[Ev, From, To, VM]) mapAll(effects []From) []To {
	if len(effects) == 0 {
		return nil
	}
	out := make([]To, 0, len(effects))
	for _, e := range effects {
		out = append(out, l.f(e))
	}
	return out
}

var _ Layer[struct{}, int, struct{}] = (*MapEffectLayer[struct{}, string, int, struct{}])(nil)
