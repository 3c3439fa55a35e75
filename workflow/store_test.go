package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentorch/types"
)

func TestMemorySessionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionStore()

	s := newTestSession("")
	require.NoError(t, store.Save(ctx, s))
	assert.Error(t, store.Save(ctx, nil))

	got, err := store.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = store.Get(ctx, "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))

	require.NoError(t, store.Delete(ctx, s.SessionID))
	assert.True(t, types.IsErrorCode(store.Delete(ctx, s.SessionID), types.ErrSessionNotFound))
	assert.Equal(t, 0, store.Len())
}

func TestMemorySessionStore_ReapOnlyTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionStore()

	old := NewWorkflowSession("old", "wf", "", testEpoch)
	old.finish(SessionStatusCompleted, "", testEpoch)
	oldPending := NewWorkflowSession("old-pending", "wf", "", testEpoch)
	recent := NewWorkflowSession("recent", "wf", "", testEpoch)
	recent.finish(SessionStatusError, "boom", testEpoch.Add(2*time.Hour))

	for _, s := range []*WorkflowSession{old, oldPending, recent} {
		require.NoError(t, store.Save(ctx, s))
	}

	n, err := store.Reap(ctx, testEpoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "old")
	assert.Error(t, err)
	_, err = store.Get(ctx, "old-pending")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "recent")
	assert.NoError(t, err)
}

func TestMemoryWorkflowStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryWorkflowStore()

	require.NoError(t, store.Save(ctx, &WorkflowDefinition{ID: "b"}))
	require.NoError(t, store.Save(ctx, &WorkflowDefinition{ID: "a"}))
	assert.Error(t, store.Save(ctx, nil))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
	assert.True(t, types.IsErrorCode(store.Delete(ctx, "a"), types.ErrWorkflowNotFound))
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, SessionStatusPending.IsTerminal())
	assert.False(t, SessionStatusRunning.IsTerminal())
	assert.False(t, SessionStatusPaused.IsTerminal())
	assert.True(t, SessionStatusCompleted.IsTerminal())
	assert.True(t, SessionStatusError.IsTerminal())
	assert.True(t, SessionStatusCancelled.IsTerminal())
}
