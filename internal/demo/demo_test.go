package demo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cruxgo/internal/capability"
	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
)

func kinds[E interface{ Kind() string }](effects []E) []string {
	out := make([]string, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Kind())
	}
	return out
}

func find(t *testing.T, effects []Effect, kind string) Effect {
	t.Helper()
	for _, e := range effects {
		if e.Kind() == kind {
			return e
		}
	}
	t.Fatalf("no %s effect in %v", kind, kinds(effects))
	return Effect{}
}

func TestApp_Counter(t *testing.T) {
	c := NewCore()

	effects := c.Update(Event{Kind: EventIncrement, Amount: 2})
	assert.Equal(t, []string{"render"}, kinds(effects))

	c.Update(Event{Kind: EventIncrement})
	c.Update(Event{Kind: EventDecrement})
	assert.Equal(t, 2, c.View().Count)

	c.Update(Event{Kind: EventReset})
	assert.Equal(t, ViewModel{Rolls: []int{}}, c.View())
}

func TestApp_SaveAndLoad(t *testing.T) {
	c := NewCore()
	c.Update(Event{Kind: EventIncrement, Amount: 5})

	effects := c.Update(Event{Kind: EventSave})
	assert.Equal(t, []string{"render", "key_value"}, kinds(effects))
	assert.Equal(t, "saving", c.View().Status)

	set := find(t, effects, "key_value").KeyValue
	assert.Equal(t, capability.KeyValueOperation{Action: capability.ActionSet, Key: CountKey, Value: "5"}, set.Operation)

	effects, err := core.Resolve(c, set, capability.KeyValueResult{Value: "5", Found: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"render"}, kinds(effects))
	assert.Equal(t, "saved", c.View().Status)

	c.Update(Event{Kind: EventReset})

	effects = c.Update(Event{Kind: EventLoad})
	require.Equal(t, []string{"key_value"}, kinds(effects))
	_, err = core.Resolve(c, effects[0].KeyValue, capability.KeyValueResult{Value: "5", Found: true})
	require.NoError(t, err)

	view := c.View()
	assert.Equal(t, 5, view.Count)
	assert.Equal(t, "loaded", view.Status)
}

func TestApp_LoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		result capability.KeyValueResult
		status string
	}{
		{"nothing saved", capability.KeyValueResult{}, "nothing saved"},
		{"store error", capability.KeyValueResult{Error: "locked"}, "load failed: locked"},
		{"bad value", capability.KeyValueResult{Value: "x", Found: true}, `load failed: bad count "x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCore()
			c.Update(Event{Kind: EventIncrement, Amount: 3})

			effects := c.Update(Event{Kind: EventLoad})
			require.Len(t, effects, 1)
			_, err := core.Resolve(c, effects[0].KeyValue, tt.result)
			require.NoError(t, err)

			view := c.View()
			assert.Equal(t, tt.status, view.Status)
			assert.Equal(t, 3, view.Count)
		})
	}
}

func TestApp_RollStreamEndsAfterCount(t *testing.T) {
	c := NewCore()

	effects := c.Update(Event{Kind: EventRoll, Amount: 3})
	assert.Equal(t, []string{"render", "random"}, kinds(effects))
	assert.True(t, c.View().Rolling)

	roll := find(t, effects, "random").Random
	for _, v := range []int{4, 1, 6} {
		effects, err := core.Resolve(c, roll, capability.RandomNumber{Value: v})
		require.NoError(t, err)
		assert.Equal(t, []string{"render"}, kinds(effects))
	}

	view := c.View()
	assert.Equal(t, []int{4, 1, 6}, view.Rolls)
	assert.False(t, view.Rolling)
	assert.Equal(t, "rolled", view.Status)

	// The stream was aborted once the last value arrived.
	_, err := core.Resolve(c, roll, capability.RandomNumber{Value: 2})
	assert.True(t, command.IsNotFound(err))
}

func TestApp_StopRolling(t *testing.T) {
	c := NewCore()

	effects := c.Update(Event{Kind: EventRoll, Amount: 5})
	roll := find(t, effects, "random").Random

	_, err := core.Resolve(c, roll, capability.RandomNumber{Value: 2})
	require.NoError(t, err)

	// A second roll while one is running is ignored.
	assert.Empty(t, c.Update(Event{Kind: EventRoll}))

	effects = c.Update(Event{Kind: EventStopRolling})
	assert.Equal(t, []string{"render"}, kinds(effects))

	_, err = core.Resolve(c, roll, capability.RandomNumber{Value: 3})
	assert.True(t, command.IsNotFound(err))

	view := c.View()
	assert.Equal(t, []int{2}, view.Rolls)
	assert.False(t, view.Rolling)
	assert.Equal(t, "stopped", view.Status)

	// Stopping again is a no-op.
	assert.Empty(t, c.Update(Event{Kind: EventStopRolling}))
}

func TestToShellEffect(t *testing.T) {
	render := &RenderRequest{}
	assert.Equal(t, ShellEffect{Render: render}, ToShellEffect(Effect{Render: render}))
	assert.Equal(t, "render", ShellEffect{Render: render}.Kind())

	assert.PanicsWithValue(t, "demo: random effect reached the shell; it must be handled natively", func() {
		ToShellEffect(Effect{Random: &capability.RandomRequest{}})
	})
}

// memoryStore is an in-memory capability.KeyValueStore.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

type shellCollector struct {
	mu      sync.Mutex
	effects []ShellEffect
}

func (c *shellCollector) callback(effects []ShellEffect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.effects = append(c.effects, effects...)
}

func TestStack_NativeCapabilities(t *testing.T) {
	worker := capability.NewWorker(context.Background(), nil)
	kv := &memoryStore{data: map[string]string{}}
	layer := NewStack(NewCore(), StackConfig{
		Worker:   worker,
		KeyValue: kv,
		Random:   capability.NewRandomSource(7),
	})
	var out shellCollector

	effects := layer.Update(Event{Kind: EventRoll, Amount: 3}, out.callback)
	assert.Equal(t, []string{"render"}, kinds(effects))
	require.NoError(t, worker.Wait())

	view := layer.View()
	assert.Len(t, view.Rolls, 3)
	assert.False(t, view.Rolling)
	assert.Len(t, out.effects, 3)

	layer.Update(Event{Kind: EventIncrement, Amount: 9}, out.callback)
	effects = layer.Update(Event{Kind: EventSave}, out.callback)
	assert.Equal(t, []string{"render"}, kinds(effects))
	require.NoError(t, worker.Wait())

	assert.Equal(t, "saved", layer.View().Status)
	value, found, err := kv.Get(context.Background(), CountKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "9", value)
}

func TestStack_KeyValueReachesShellWithoutStore(t *testing.T) {
	worker := capability.NewWorker(context.Background(), nil)
	layer := NewStack(NewCore(), StackConfig{Worker: worker})

	effects := layer.Update(Event{Kind: EventLoad}, nil)
	require.Equal(t, []string{"key_value"}, kinds(effects))
	require.NotNil(t, effects[0].KeyValue)

	_, err := layer.Resolve(effects[0].Request(), capability.KeyValueResult{Value: "4", Found: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, layer.View().Count)
	require.NoError(t, worker.Wait())
}
