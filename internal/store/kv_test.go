package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV_SetGetDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "counter", "1"))
	require.NoError(t, s.Set(ctx, "counter", "2"))

	value, found, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", value)

	existed, err := s.Delete(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, existed)

	_, found, err = s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKV_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/kv.db"
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	value, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)
}
