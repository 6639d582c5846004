// Package store provides SQLite-backed durable storage for request logs.
//
// A request log records what crossed the bridge during one session:
//   - event: an event handed to update
//   - request: an effect request issued to the shell, with its id
//   - resolution: an output delivered for a request id
//
// Entries are ordered by a per-session sequence number, never by wall
// time, so a log reads back identically however fast it was written.
// Payloads are stored as canonical JSON (sorted keys, NFC strings), so two
// runs of the same scenario produce byte-identical logs.
//
// The store also holds a small key-value table used by the key-value
// capability.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
