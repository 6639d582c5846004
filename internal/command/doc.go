// Package command implements the effect/command resolution core.
//
// A Command is a description of asynchronous work written by business logic:
// it issues requests to the shell, waits for their outputs, and emits events
// to be fed back into the application's update function. Commands never block
// and never start goroutines. They are driven forward only when a request is
// resolved.
//
// EXECUTION MODEL:
//
// Continuation passing over a trampoline:
//   - Every unit of work (starting a command, resuming after a resolution,
//     completing a command) is a thunk pushed onto the owning scheduler's
//     ready queue.
//   - Whichever goroutine pushes work tries to become the driver and drains
//     the queue. Work pushed while another goroutine drives is picked up by
//     that driver.
//   - Nothing recurses through nested commands, so sequencing or joining
//     thousands of commands uses constant stack.
//
// Suspension points:
// A command suspends only when it awaits the output of a request. The
// request's Resolver holds the continuation; resolving it schedules the
// continuation and drives the scheduler until it is idle again.
//
// MULTIPLICITY:
//
//   - Never: notifications (e.g. render). Resolving returns ResolveNever.
//   - Once:  request/response. The second resolution returns AlreadyResolved.
//   - Many:  streams. Resolvable until the owning command is cancelled.
//
// CANCELLATION:
//
// Commands form a tree of cancellation scopes. Cancel (or an AbortHandle)
// drops queued continuations of the scope and turns every resolver created
// inside it inert: later resolutions return NotFound and never touch the
// command's state.
package command
