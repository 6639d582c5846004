package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cruxgo/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // empty lists sessions
	Request  uint32 // optional - filter to one request id
}

// TraceEntry is a single entry in the trace timeline.
type TraceEntry struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"` // "event", "request" or "resolution"
	RequestID uint32          `json:"request_id,omitempty"`
	Operation string          `json:"operation,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	Events      int `json:"events"`
	Requests    int `json:"requests"`
	Resolutions int `json:"resolutions"`
	Unanswered  int `json:"unanswered"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// SessionList is the output of trace without --session.
type SessionList struct {
	Sessions []string `json:"sessions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the recorded request log",
		Long: `Inspect the request log recorded by the run command.

Without --session, lists the recorded sessions. With --session, prints
the session timeline: events handed to the app, requests issued to the
shell and the outputs that resolved them. --request narrows the
timeline to one request and its resolutions.

The stats count requests that never received an output as unanswered.
Notifications never receive an output, so they always count.

Examples:
  cruxctl trace --db ./crux.db
  cruxctl trace --db ./crux.db --session 0192...
  cruxctl trace --db ./crux.db --session 0192... --request 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace")
	cmd.Flags().Uint32Var(&opts.Request, "request", 0, "filter to one request id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return exitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if opts.Session == "" {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return exitError(ExitCommandError, "failed to list sessions", err)
		}
		if opts.Format == "json" {
			return out.Success(SessionList{Sessions: sessions})
		}
		return outputSessionsText(cmd.OutOrStdout(), sessions)
	}

	var entries []store.Entry
	if opts.Request != 0 {
		entries, err = st.RequestHistory(ctx, opts.Session, opts.Request)
	} else {
		entries, err = st.ReadSession(ctx, opts.Session)
	}
	if err != nil {
		return exitError(ExitCommandError, "failed to read session", err)
	}

	result := buildTrace(opts.Session, entries)

	if opts.Format == "json" {
		return out.Success(result)
	}
	return outputTraceText(cmd.OutOrStdout(), result)
}

// buildTrace converts log entries into a timeline with stats.
func buildTrace(session string, entries []store.Entry) TraceResult {
	result := TraceResult{
		Session:  session,
		Timeline: make([]TraceEntry, 0, len(entries)),
	}

	answered := make(map[uint32]bool)
	for _, e := range entries {
		result.Timeline = append(result.Timeline, TraceEntry{
			Seq:       e.Seq,
			Type:      string(e.Kind),
			RequestID: e.RequestID,
			Operation: e.Operation,
			Payload:   e.Payload,
		})

		switch e.Kind {
		case store.KindEvent:
			result.Stats.Events++
		case store.KindRequest:
			result.Stats.Requests++
			if _, ok := answered[e.RequestID]; !ok {
				answered[e.RequestID] = false
			}
		case store.KindResolution:
			result.Stats.Resolutions++
			answered[e.RequestID] = true
		}
	}

	for _, ok := range answered {
		if !ok {
			result.Stats.Unanswered++
		}
	}
	return result
}

func outputSessionsText(w io.Writer, sessions []string) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	fmt.Fprintln(w, "=== Sessions ===")
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s\n", s)
	}
	return nil
}

func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", truncateID(result.Session))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Timeline {
		formatTraceEntry(w, e)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:      %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Requests:    %d\n", result.Stats.Requests)
	fmt.Fprintf(w, "  Resolutions: %d\n", result.Stats.Resolutions)
	fmt.Fprintf(w, "  Unanswered:  %d\n", result.Stats.Unanswered)

	return nil
}

func formatTraceEntry(w io.Writer, e TraceEntry) {
	switch e.Type {
	case string(store.KindEvent):
		fmt.Fprintf(w, "  [%d] EVENT %s\n", e.Seq, e.Payload)
	case string(store.KindRequest):
		fmt.Fprintf(w, "  [%d] REQ  #%d %s %s\n", e.Seq, e.RequestID, e.Operation, e.Payload)
	case string(store.KindResolution):
		fmt.Fprintf(w, "  [%d] RES  #%d %s %s\n", e.Seq, e.RequestID, e.Operation, e.Payload)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
