package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDict(t *testing.T) {
	ctx := context.Background()
	d := NewStore().Dict("user_names")

	_, ok, err := d.Get(ctx, "+15555550100")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Set(ctx, "+15555550100", "alice"))
	require.NoError(t, d.Set(ctx, "+15555550101", "bob"))

	v, ok, err := d.Get(ctx, "+15555550100")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	keys, err := d.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+15555550100", "+15555550101"}, keys)

	v, ok, err = d.Pop(ctx, "+15555550101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", v)

	_, ok, _ = d.Pop(ctx, "+15555550101")
	assert.False(t, ok)

	items, err := d.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"+15555550100": "alice"}, items)
}

func TestListDictKeepsOrderAndDedups(t *testing.T) {
	ctx := context.Background()
	l := NewStore().ListDict("followers")

	require.NoError(t, l.Extend(ctx, "a", "b", "c"))
	require.NoError(t, l.Extend(ctx, "a", "c", "d", "b"))

	got, err := l.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, got)

	require.NoError(t, l.RemoveFrom(ctx, "a", "c"))
	require.NoError(t, l.RemoveFrom(ctx, "a", "missing"))
	got, _ = l.Get(ctx, "a")
	assert.Equal(t, []string{"b", "d"}, got)

	require.NoError(t, l.RemoveFrom(ctx, "a", "b"))
	require.NoError(t, l.RemoveFrom(ctx, "a", "d"))
	items, err := l.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTablesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Dict("one").Set(ctx, "k", "v"))

	_, ok, err := s.Dict("two").Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = s.Dict("one").Get(ctx, "k")
	assert.True(t, ok)
}
