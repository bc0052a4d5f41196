package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whispr-service/internal/graph"
	"whispr-service/internal/model"
	"whispr-service/internal/repository/memory"
)

func TestMemoryIndexHidesLockedProfiles(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.IndexProfile(ctx, &model.UserProfile{Number: "+1", DisplayName: "Alice"}))
	require.NoError(t, idx.IndexProfile(ctx, &model.UserProfile{Number: "+2", DisplayName: "Alicia", Locked: true}))
	require.NoError(t, idx.IndexProfile(ctx, &model.UserProfile{Number: "+3", DisplayName: "Bob"}))

	hits, err := idx.Search(ctx, "ali", 10)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{Number: "+1", DisplayName: "Alice"}}, hits)
}

func TestReindexerRunOnce(t *testing.T) {
	ctx := context.Background()
	store := graph.NewStore(memory.NewStore())
	require.NoError(t, store.SetProfile(ctx, &model.UserProfile{Number: "+1", DisplayName: "Alice"}))
	require.NoError(t, store.SetProfile(ctx, &model.UserProfile{Number: "+2", DisplayName: "Bob", Locked: true}))

	idx := NewMemoryIndex()
	n, err := NewReindexer(store, idx, zap.NewNop()).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{Number: "+1", DisplayName: "Alice"}}, hits)
}
