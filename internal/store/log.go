package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// EntryKind is the kind of a request log entry.
type EntryKind string

const (
	// KindEvent records an event handed to update.
	KindEvent EntryKind = "event"

	// KindRequest records an effect request issued to the shell.
	KindRequest EntryKind = "request"

	// KindResolution records an output delivered for a request.
	KindResolution EntryKind = "resolution"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindEvent, KindRequest, KindResolution:
		return true
	}
	return false
}

// Entry is one row of a session's request log.
type Entry struct {
	Session   string          `json:"session"`
	Seq       int64           `json:"seq"`
	Kind      EntryKind       `json:"kind"`
	RequestID uint32          `json:"request_id,omitempty"`
	Operation string          `json:"operation,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Append writes an entry to the log. The payload is stored in canonical
// form. Uses ON CONFLICT DO NOTHING for idempotency: writing the same
// (session, seq) twice keeps the first entry.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.Session == "" {
		return fmt.Errorf("append entry: session is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("append entry: unknown kind %q", e.Kind)
	}

	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries
		(session, seq, kind, request_id, operation, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		e.Session,
		e.Seq,
		string(e.Kind),
		int64(e.RequestID),
		e.Operation,
		string(canonical),
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	return nil
}

// ReadSession returns all entries of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadSession(ctx context.Context, session string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, kind, request_id, operation, payload
		FROM entries
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			kind      string
			requestID int64
			payload   string
		)
		if err := rows.Scan(&e.Session, &e.Seq, &kind, &requestID, &e.Operation, &payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		e.RequestID = uint32(requestID)
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// RequestHistory returns the request entry and all resolutions of one
// request id within a session, ordered by seq.
func (s *Store) RequestHistory(ctx context.Context, session string, requestID uint32) ([]Entry, error) {
	all, err := s.ReadSession(ctx, session)
	if err != nil {
		return nil, err
	}
	history := []Entry{}
	for _, e := range all {
		if e.Kind != KindEvent && e.RequestID == requestID {
			history = append(history, e)
		}
	}
	return history, nil
}

// Sessions returns the ids of all recorded sessions, sorted.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session
		FROM entries
		ORDER BY session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// LastSeq returns the highest seq recorded for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0)
		FROM entries
		WHERE session = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}
