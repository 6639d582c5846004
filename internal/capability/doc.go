// Package capability provides small ready-made operations and the native
// middlewares that answer them.
//
//   - Render: a notification asking the shell to redraw
//   - KeyValue: get, set and delete against a key-value store
//   - Random: a stream of random numbers
//
// Middlewares run their work on a Worker, never inside the call that
// registered the request.
package capability
