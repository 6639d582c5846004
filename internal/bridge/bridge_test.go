package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
	"github.com/roach88/cruxgo/internal/middleware"
	"github.com/roach88/cruxgo/internal/store"
	"github.com/roach88/cruxgo/internal/testutil"
)

type fetchOp struct {
	N int `json:"n"`
}

type tickOp struct {
	Count int `json:"count"`
}

type noteOp struct {
	Text string `json:"text"`
}

type testEffect struct {
	kind string
	req  command.Resolvable
}

func (e testEffect) Kind() string                { return e.kind }
func (e testEffect) Request() command.Resolvable { return e.req }

type testEvent struct {
	Kind  string `json:"kind"`
	Value int    `json:"value,omitempty"`
}

type testModel struct {
	Total int
	watch *command.AbortHandle
}

type testView struct {
	Total int `json:"total"`
}

type testApp struct{}

func lift[Op, Out any](kind string) func(*command.Request[Op, Out]) testEffect {
	return func(r *command.Request[Op, Out]) testEffect {
		return testEffect{kind: kind, req: r}
	}
}

func add(v int) testEvent { return testEvent{Kind: "add", Value: v} }

func (testApp) Update(ev testEvent, m *testModel) *command.Command[testEffect, testEvent] {
	switch ev.Kind {
	case "fetch":
		return command.RequestFromShell[testEffect, testEvent](fetchOp{N: ev.Value}, lift[fetchOp, int]("fetch")).
			ThenSend(add)
	case "tick":
		return command.StreamFromShell[testEffect, testEvent](tickOp{Count: ev.Value}, lift[tickOp, int]("tick")).
			ThenSend(add)
	case "watch":
		cmd := command.StreamFromShell[testEffect, testEvent](tickOp{Count: ev.Value}, lift[tickOp, int]("tick")).
			ThenSend(add)
		m.watch = cmd.AbortHandle()
		return cmd
	case "unwatch":
		if m.watch != nil {
			m.watch.Abort()
		}
		return nil
	case "note":
		return command.NotifyShell[testEffect, testEvent](noteOp{Text: "hello"}, lift[noteOp, struct{}]("note"))
	case "add":
		m.Total += ev.Value
		return command.NotifyShell[testEffect, testEvent](noteOp{Text: "total changed"}, lift[noteOp, struct{}]("note"))
	}
	return nil
}

func (testApp) View(m *testModel) testView {
	return testView{Total: m.Total}
}

func newLayer() middleware.Layer[testEvent, testEffect, testView] {
	c := core.New[testEvent, testModel, testView, testEffect](testApp{})
	return middleware.FromCore(c)
}

func newBridge(opts ...Option) *Bridge[testEvent, testEffect, testView] {
	opts = append([]Option{WithSessionGenerator(testutil.NewFixedSessionGenerator("bridge-test"))}, opts...)
	return New[testEvent, testEffect, testView](newLayer(), opts...)
}

func TestBridge_UpdateResolveView(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	out, err := b.Update(ctx, []byte(`{"kind":"fetch","value":4}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"fetch","multiplicity":"once","operation":{"n":4}}]`, string(out))

	out, err = b.Resolve(ctx, 1, []byte(`40`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":2,"kind":"note","multiplicity":"never","operation":{"text":"total changed"}}]`, string(out))

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":40}`, string(view))
}

func TestBridge_OnceIDReleasedAfterResolution(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	_, err := b.Update(ctx, []byte(`{"kind":"fetch","value":1}`))
	require.NoError(t, err)
	_, err = b.Resolve(ctx, 1, []byte(`10`))
	require.NoError(t, err)

	_, err = b.Resolve(ctx, 1, []byte(`10`))
	require.Error(t, err)
	assert.True(t, command.IsNotFound(err))

	var re *command.ResolveError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, uint32(1), re.RequestID)

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":10}`, string(view))
}

func TestBridge_OutputMismatchKeepsID(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	_, err := b.Update(ctx, []byte(`{"kind":"fetch","value":1}`))
	require.NoError(t, err)

	_, err = b.Resolve(ctx, 1, []byte(`"not a number"`))
	require.Error(t, err)
	assert.True(t, command.IsOutputMismatch(err))
	assert.Contains(t, err.Error(), "request=1")

	// The request is still pending and accepts a well-formed output.
	_, err = b.Resolve(ctx, 1, []byte(`7`))
	require.NoError(t, err)

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":7}`, string(view))
}

func TestBridge_StreamKeepsID(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	out, err := b.Update(ctx, []byte(`{"kind":"tick","value":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"tick","multiplicity":"many","operation":{"count":3}}]`, string(out))

	for _, v := range []string{"1", "2", "3"} {
		_, err := b.Resolve(ctx, 1, []byte(v))
		require.NoError(t, err)
	}

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":6}`, string(view))
}

func TestBridge_NotificationIDsEvictedOnUpdate(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	out, err := b.Update(ctx, []byte(`{"kind":"note"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"note","multiplicity":"never","operation":{"text":"hello"}}]`, string(out))
	assert.Equal(t, 1, b.Pending())

	_, err = b.Resolve(ctx, 1, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, command.IsResolveNever(err))

	_, err = b.Update(ctx, []byte(`{"kind":"fetch","value":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Pending())

	_, err = b.Resolve(ctx, 1, []byte(`{}`))
	assert.True(t, command.IsNotFound(err))
}

func TestBridge_AbortedStreamIDsEvictedOnUpdate(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	out, err := b.Update(ctx, []byte(`{"kind":"watch","value":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"tick","multiplicity":"many","operation":{"count":3}}]`, string(out))
	_, err = b.Resolve(ctx, 1, []byte(`2`))
	require.NoError(t, err)

	_, err = b.Update(ctx, []byte(`{"kind":"unwatch"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Pending())

	_, err = b.Update(ctx, []byte(`{"kind":"idle"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, b.Pending())

	_, err = b.Resolve(ctx, 1, []byte(`1`))
	assert.True(t, command.IsNotFound(err))

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":2}`, string(view))
}

func TestBridge_UnknownID(t *testing.T) {
	b := newBridge()

	_, err := b.Resolve(context.Background(), 99, []byte(`1`))
	require.Error(t, err)
	assert.True(t, command.IsNotFound(err))
	assert.Contains(t, err.Error(), "request=99")
}

func TestBridge_BadEvent(t *testing.T) {
	b := newBridge()

	_, err := b.Update(context.Background(), []byte(`{"kind":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event")

	_, err = b.Update(context.Background(), []byte(`{"kind":"fetch","bogus":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event")
}

func TestBridge_RecordsRequestLog(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := newBridge(WithRecorder(st))
	ctx := context.Background()
	assert.Equal(t, "bridge-test", b.Session())

	_, err = b.Update(ctx, []byte(`{"kind":"fetch","value":4}`))
	require.NoError(t, err)
	_, err = b.Resolve(ctx, 1, []byte(`40`))
	require.NoError(t, err)

	entries, err := st.ReadSession(ctx, "bridge-test")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, store.KindEvent, entries[0].Kind)
	assert.Equal(t, `{"kind":"fetch","value":4}`, string(entries[0].Payload))

	assert.Equal(t, store.KindRequest, entries[1].Kind)
	assert.Equal(t, uint32(1), entries[1].RequestID)
	assert.Equal(t, "bridge.fetchOp", entries[1].Operation)
	assert.Equal(t, `{"n":4}`, string(entries[1].Payload))

	assert.Equal(t, store.KindResolution, entries[2].Kind)
	assert.Equal(t, uint32(1), entries[2].RequestID)
	assert.Equal(t, `40`, string(entries[2].Payload))

	assert.Equal(t, store.KindRequest, entries[3].Kind)
	assert.Equal(t, uint32(2), entries[3].RequestID)
}

func TestBridge_WithSessionAndSequence(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	seq := testutil.NewDeterministicSequence(10)
	seqs := func(session string) []int64 {
		b := newBridge(WithRecorder(st), WithSession(session), WithSequence(seq))
		assert.Equal(t, session, b.Session())

		_, err := b.Update(ctx, []byte(`{"kind":"fetch","value":4}`))
		require.NoError(t, err)

		entries, err := st.ReadSession(ctx, session)
		require.NoError(t, err)
		var out []int64
		for _, e := range entries {
			out = append(out, e.Seq)
		}
		return out
	}

	assert.Equal(t, []int64{11, 12}, seqs("first"))

	seq.Reset()
	assert.Equal(t, []int64{11, 12}, seqs("second"))
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, store.Entry) error {
	return errors.New("disk full")
}

func TestBridge_RecorderFailureDoesNotFailCall(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	b := newBridge(WithRecorder(failingRecorder{}), WithLogger(logger))

	out, err := b.Update(context.Background(), []byte(`{"kind":"fetch","value":4}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"fetch","multiplicity":"once","operation":{"n":4}}]`, string(out))
	assert.Contains(t, logs.String(), "failed to record log entry")
	assert.Contains(t, logs.String(), "disk full")
}

func TestBridge_ProcessTasksReturnsAsyncEffects(t *testing.T) {
	exec := testutil.NewManualExecutor()
	mw := middleware.MiddlewareFunc[testEffect, fetchOp, int]{
		Narrow: func(e testEffect) (*command.Request[fetchOp, int], bool) {
			r, ok := e.req.(*command.Request[fetchOp, int])
			return r, ok
		},
		Handle: func(op fetchOp, resolve func(int)) {
			exec.Go(func() { resolve(op.N * 100) })
		},
	}
	layer := middleware.HandleEffects(newLayer(), middleware.EffectMiddleware[testEffect, fetchOp, int](mw))
	b := New[testEvent, testEffect, testView](layer)
	ctx := context.Background()

	out, err := b.Update(ctx, []byte(`{"kind":"fetch","value":2}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))

	out, err = b.ProcessTasks(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))

	exec.RunPending()

	out, err = b.ProcessTasks(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"kind":"note","multiplicity":"never","operation":{"text":"total changed"}}]`, string(out))

	view, err := b.View()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":200}`, string(view))
}

func TestBridge_CloseMakesIDsStale(t *testing.T) {
	b := newBridge()
	ctx := context.Background()

	_, err := b.Update(ctx, []byte(`{"kind":"fetch","value":1}`))
	require.NoError(t, err)

	b.Close()

	_, err = b.Resolve(ctx, 1, []byte(`1`))
	require.Error(t, err)
	assert.True(t, command.IsNotFound(err))
	assert.Equal(t, 0, b.Pending())
}
