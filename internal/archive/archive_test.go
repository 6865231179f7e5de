// ABOUTME: Tests for the SQLite transcript archive
// ABOUTME: Covers schema bootstrap, upsert-on-terminal, replay ordering, and store attachment

package archive

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/loom/internal/session"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_UpsertAndReplayInOrder(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.upsert(ctx, "sess-1", session.Message{
		ID: "m1", Role: session.RoleUser, Content: "hi", Type: session.TypeText, CreatedAt: base,
	}))
	require.NoError(t, a.upsert(ctx, "sess-1", session.Message{
		ID: "m2", Role: session.RoleAssistant, Content: "hello", Type: session.TypeText, CreatedAt: base.Add(time.Second),
	}))

	messages, err := a.Replay(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestArchive_UpsertReplacesContent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	msg := session.Message{ID: "m1", Role: session.RoleAssistant, Content: "partial", Type: session.TypeText, CreatedAt: time.Now()}
	require.NoError(t, a.upsert(ctx, "sess-1", msg))
	msg.Content = "complete answer"
	require.NoError(t, a.upsert(ctx, "sess-1", msg))

	messages, err := a.Replay(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "complete answer", messages[0].Content)
}

func TestArchive_JSONBlocksRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.upsert(ctx, "sess-1", session.Message{
		ID:   "m1",
		Role: session.RoleAssistant,
		Type: session.TypeJSONCard,
		JSONBlocks: []json.RawMessage{
			json.RawMessage(`{"a":1}`),
			json.RawMessage(`{"b":2}`),
		},
		CreatedAt: time.Now(),
	}))

	messages, err := a.Replay(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].JSONBlocks, 2)
	assert.JSONEq(t, `{"a":1}`, string(messages[0].JSONBlocks[0]))
	assert.JSONEq(t, `{"b":2}`, string(messages[0].JSONBlocks[1]))
	assert.Equal(t, session.TypeJSONCard, messages[0].Type)
}

func TestArchive_SessionsAreIsolated(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.upsert(ctx, "sess-1", session.Message{
		ID: "m1", Role: session.RoleUser, Content: "mine", Type: session.TypeText, CreatedAt: time.Now(),
	}))

	messages, err := a.Replay(ctx, "sess-2")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestArchive_AttachPersistsTerminalMessagesOnly(t *testing.T) {
	a := openTestArchive(t)
	store := session.NewStore(nil)
	defer store.Close()

	a.Attach(context.Background(), store)

	store.Dispatch(session.SetSession{Session: &session.Session{ID: "sess-1"}})
	store.Dispatch(session.AddMessage{Message: session.Message{
		ID: "m1", Role: session.RoleAssistant, Content: "streaming", IsStreaming: true,
		Type: session.TypeText, CreatedAt: time.Now(),
	}})

	// Still streaming: nothing archived yet.
	require.Never(t, func() bool {
		messages, err := a.Replay(context.Background(), "sess-1")
		return err == nil && len(messages) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	streaming := false
	store.Dispatch(session.UpdateMessage{ID: "m1", Patch: session.MessagePatch{SetStreaming: &streaming}})

	require.Eventually(t, func() bool {
		messages, err := a.Replay(context.Background(), "sess-1")
		return err == nil && len(messages) == 1 && messages[0].Content == "streaming"
	}, time.Second, 10*time.Millisecond)
}
