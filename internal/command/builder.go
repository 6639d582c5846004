package command

// Done returns a command that completes immediately without output.
func Done[Eff, Ev any]() *Command[Eff, Ev] {
	return newCommand(func(_ *sink[Eff, Ev], k func()) {
		k()
	})
}

// Event returns a command that emits e and completes.
func Event[Eff, Ev any](e Ev) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		s.event(e)
		k()
	})
}

// NotifyShell returns a command that emits a notification effect for op and
// completes. The shell cannot resolve a notification.
func NotifyShell[Eff, Ev, Op any](op Op, lift func(*Request[Op, struct{}]) Eff) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		s.effect(lift(newRequest[Op, struct{}](op, Never, s.sched, s.scope, nil)))
		k()
	})
}

// RequestBuilder describes a request whose output has not been consumed yet.
// Finish it with Then, ThenSend or Build to obtain a Command.
type RequestBuilder[Eff, Ev, Out any] struct {
	await func(s *sink[Eff, Ev], k func(Out))
}

// RequestFromShell issues a one-shot request for op. lift wraps the request
// in the application's effect type.
//
// Typical use instantiates the effect and event types explicitly and lets
// the rest be inferred:
//
//	command.RequestFromShell[Effect, Event](op, func(r *command.Request[Op, Out]) Effect {
//	    return Effect{Op: r}
//	})
func RequestFromShell[Eff, Ev, Op, Out any](op Op, lift func(*Request[Op, Out]) Eff) *RequestBuilder[Eff, Ev, Out] {
	return &RequestBuilder[Eff, Ev, Out]{
		await: func(s *sink[Eff, Ev], k func(Out)) {
			s.effect(lift(newRequest(op, Once, s.sched, s.scope, k)))
		},
	}
}

// Then continues with the command f returns for the output. A nil command
// completes immediately.
func (b *RequestBuilder[Eff, Ev, Out]) Then(f func(Out) *Command[Eff, Ev]) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		b.await(s, func(out Out) {
			next := f(out)
			if next == nil {
				k()
				return
			}
			next.start(s, k)
		})
	})
}

// ThenSend emits the event f builds from the output, then completes.
func (b *RequestBuilder[Eff, Ev, Out]) ThenSend(f func(Out) Ev) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		b.await(s, func(out Out) {
			s.event(f(out))
			k()
		})
	})
}

// Build returns a command that completes when the request is resolved,
// discarding the output.
func (b *RequestBuilder[Eff, Ev, Out]) Build() *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		b.await(s, func(Out) {
			k()
		})
	})
}

// ThenRequest chains a second request built from the first one's output.
func ThenRequest[Eff, Ev, A, B any](b *RequestBuilder[Eff, Ev, A], f func(A) *RequestBuilder[Eff, Ev, B]) *RequestBuilder[Eff, Ev, B] {
	return &RequestBuilder[Eff, Ev, B]{
		await: func(s *sink[Eff, Ev], k func(B)) {
			b.await(s, func(a A) {
				f(a).await(s, k)
			})
		},
	}
}

// MapOutput transforms the output of a request before it is consumed.
func MapOutput[Eff, Ev, A, B any](b *RequestBuilder[Eff, Ev, A], f func(A) B) *RequestBuilder[Eff, Ev, B] {
	return &RequestBuilder[Eff, Ev, B]{
		await: func(s *sink[Eff, Ev], k func(B)) {
			b.await(s, func(a A) {
				k(f(a))
			})
		},
	}
}

// StreamBuilder describes a streaming request. Streams never complete on
// their own; stop them with an AbortHandle or by cancelling the owner.
type StreamBuilder[Eff, Ev, Out any] struct {
	subscribe func(s *sink[Eff, Ev], each func(Out))
}

// StreamFromShell issues a streaming request for op. Every resolution
// delivers one more output.
func StreamFromShell[Eff, Ev, Op, Out any](op Op, lift func(*Request[Op, Out]) Eff) *StreamBuilder[Eff, Ev, Out] {
	return &StreamBuilder[Eff, Ev, Out]{
		subscribe: func(s *sink[Eff, Ev], each func(Out)) {
			s.effect(lift(newRequest(op, Many, s.sched, s.scope, each)))
		},
	}
}

// Then starts the command f returns for every output.
func (b *StreamBuilder[Eff, Ev, Out]) Then(f func(Out) *Command[Eff, Ev]) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], _ func()) {
		b.subscribe(s, func(out Out) {
			if next := f(out); next != nil {
				next.start(s, func() {})
			}
		})
	})
}

// ThenSend emits one event per output.
func (b *StreamBuilder[Eff, Ev, Out]) ThenSend(f func(Out) Ev) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], _ func()) {
		b.subscribe(s, func(out Out) {
			s.event(f(out))
		})
	})
}
