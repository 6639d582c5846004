package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cruxgo/internal/bridge"
	"github.com/roach88/cruxgo/internal/capability"
	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
	"github.com/roach88/cruxgo/internal/demo"
	"github.com/roach88/cruxgo/internal/store"
)

// maxLineSize bounds one line of run input.
const maxLineSize = 1 << 20

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	ShellKV  bool   // leave key-value requests to the shell
	Durable  bool   // sync the database on every commit
	Seed     uint64 // random seed, 0 picks one
	Resume   string // session to append to instead of starting a new one

	// Sessions overrides the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions bridge.SessionGenerator
}

// runInput is one line read by the run command. Exactly one of Event,
// Resolve and View is set.
type runInput struct {
	Event   json.RawMessage `json:"event,omitempty"`
	Resolve uint32          `json:"resolve,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	View    bool            `json:"view,omitempty"`
}

// runOutput is one line written by the run command.
type runOutput struct {
	Requests json.RawMessage `json:"requests,omitempty"`
	View     json.RawMessage `json:"view,omitempty"`
	Session  string          `json:"session,omitempty"`
	Error    *CLIError       `json:"error,omitempty"`
}

type demoBridge = bridge.Bridge[demo.Event, demo.ShellEffect, demo.ViewModel]

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the demo app over stdin/stdout",
		Long: `Serve the demo app over stdin and stdout, one JSON object per line.

Input lines:
  {"event": {"kind": "increment"}}       send an event
  {"resolve": 3, "output": {...}}        resolve request 3
  {"view": true}                         print the view model

Every input line produces one output line carrying either the new
requests or an error. Requests produced later by native capabilities
(random streams, and key-value unless --shell-kv is set) follow on
their own lines. At end of input the session id and the final view are
printed.

Every event, request and resolution is recorded to the database. With
--resume, recording continues after the last entry of an existing
session. The model itself starts fresh; send a load event to restore a
saved count.

Example:
  cruxctl run --db ./crux.db < session.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.ShellKV, "shell-kv", false, "leave key-value requests to the shell")
	cmd.Flags().BoolVar(&opts.Durable, "durable", false, "sync the database on every commit")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "append to an existing session")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("opening database", "path", opts.Database)
	var storeOpts []store.Option
	if opts.Durable {
		storeOpts = append(storeOpts, store.WithSynchronous(store.SyncFull))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return exitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	worker := capability.NewWorker(ctx, logger)
	// Jobs still running after an interrupt must not outlive the store.
	defer func() { _ = worker.Wait() }()

	cfg := demo.StackConfig{
		Worker: worker,
		Random: capability.NewRandomSource(seed),
		Logger: logger,
	}
	if !opts.ShellKV {
		cfg.KeyValue = st
	}

	bridgeOpts := []bridge.Option{
		bridge.WithRecorder(st),
		bridge.WithLogger(logger),
	}
	if opts.Sessions != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithSessionGenerator(opts.Sessions))
	}
	if opts.Resume != "" {
		last, err := st.LastSeq(ctx, opts.Resume)
		if err != nil {
			return exitError(ExitCommandError, "failed to read session", err)
		}
		if last == 0 {
			return exitError(ExitCommandError, fmt.Sprintf("session %q not found", opts.Resume), nil)
		}
		logger.Debug("resuming session", "session", opts.Resume, "last_seq", last)
		bridgeOpts = append(bridgeOpts,
			bridge.WithSession(opts.Resume),
			bridge.WithSequence(bridge.NewSequenceAt(last)),
		)
	}

	c := demo.NewCore(core.WithLogger(logger))
	b := bridge.New[demo.Event, demo.ShellEffect, demo.ViewModel](demo.NewStack(c, cfg), bridgeOpts...)
	defer b.Close()

	logger.Info("session started", "session", b.Session(), "seed", seed)

	s := &sessionServer{
		bridge: b,
		worker: worker,
		logger: logger,
		enc:    json.NewEncoder(cmd.OutOrStdout()),
	}
	if err := s.serve(ctx, cmd.InOrStdin()); err != nil {
		return exitError(ExitFailure, "session failed", err)
	}

	view, err := b.View()
	if err != nil {
		return exitError(ExitFailure, "failed to encode view", err)
	}
	if err := s.enc.Encode(runOutput{Session: b.Session(), View: view}); err != nil {
		return err
	}

	logger.Info("session ended", "session", b.Session(), "failed_lines", s.failed)
	return nil
}

type sessionServer struct {
	bridge *demoBridge
	worker *capability.Worker
	logger *slog.Logger
	enc    *json.Encoder
	failed int
}

// serve handles input lines until EOF or cancellation.
func (s *sessionServer) serve(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := s.enc.Encode(s.handle(ctx, line)); err != nil {
			return err
		}
		if err := s.drain(ctx); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *sessionServer) handle(ctx context.Context, line []byte) runOutput {
	var in runInput
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return s.fail("E_BAD_INPUT", fmt.Errorf("decode input line: %w", err), 0)
	}

	switch {
	case in.Event != nil:
		out, err := s.bridge.Update(ctx, in.Event)
		if err != nil {
			return s.fail("E_BAD_EVENT", err, 0)
		}
		return runOutput{Requests: out}

	case in.Resolve != 0:
		output := in.Output
		if output == nil {
			output = json.RawMessage("null")
		}
		out, err := s.bridge.Resolve(ctx, in.Resolve, output)
		if err != nil {
			return s.fail(string(command.CodeOf(err)), err, in.Resolve)
		}
		return runOutput{Requests: out}

	case in.View:
		view, err := s.bridge.View()
		if err != nil {
			return s.fail("E_VIEW", err, 0)
		}
		return runOutput{View: view}
	}

	return s.fail("E_BAD_INPUT", errors.New("input line needs one of event, resolve or view"), 0)
}

// drain waits for native capabilities to settle and prints the requests
// they produced.
func (s *sessionServer) drain(ctx context.Context) error {
	if err := s.worker.Wait(); err != nil {
		s.logger.Warn("native capability failed", "error", err)
	}

	out, err := s.bridge.ProcessTasks(ctx)
	if err != nil {
		return err
	}
	if bytes.Equal(out, []byte("[]")) {
		return nil
	}
	return s.enc.Encode(runOutput{Requests: out})
}

func (s *sessionServer) fail(code string, err error, id uint32) runOutput {
	s.failed++
	if code == "" {
		code = "E_RESOLVE"
	}
	s.logger.Debug("input line failed", "code", code, "request", id, "error", err)

	var details any
	if id != 0 {
		details = map[string]uint32{"request": id}
	}
	return runOutput{Error: &CLIError{
		Code:    code,
		Message: err.Error(),
		Details: details,
	}}
}
