package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessageAppendsInOrder(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.PostMessage(ctx, "visitor-1", models.SenderUser, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	session, err := svc.GetMessages(ctx, "visitor-1")
	require.NoError(t, err)
	require.Len(t, session.Messages, 5)
	for i, msg := range session.Messages {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
	}
	assert.Equal(t, "message 4", session.LastMessage)
	assert.Equal(t, 5, session.UnreadCount)
}

func TestUnreadCountsOnlyUserMessages(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, "visitor-1", models.SenderUser, "hi")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, "visitor-1", models.SenderAdmin, "hello, how can I help?")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, "visitor-1", models.SenderUser, "pricing question")
	require.NoError(t, err)

	session, err := svc.GetMessages(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.UnreadCount)
}

func TestMarkReadClearsUnread(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, "visitor-1", models.SenderUser, "hi")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "visitor-1"))

	session, err := svc.GetMessages(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Zero(t, session.UnreadCount)
	assert.Len(t, session.Messages, 1)

	// Unread resumes counting after the read.
	_, err = svc.PostMessage(ctx, "visitor-1", models.SenderUser, "still there?")
	require.NoError(t, err)
	session, err = svc.GetMessages(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 1, session.UnreadCount)
}

func TestMarkReadMissingSessionNoop(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	assert.NoError(t, svc.MarkRead(context.Background(), "nobody"))
}

func TestGetMessagesMissingSessionReadsEmpty(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())

	session, err := svc.GetMessages(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", session.ID)
	assert.Empty(t, session.Messages)
}

func TestPostMessageRejectsBadInput(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, "", models.SenderUser, "hi")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = svc.PostMessage(ctx, "visitor-1", "bot", "hi")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = svc.PostMessage(ctx, "visitor-1", models.SenderUser, "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestHeartbeatNeverCreatesSession(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewChatService(store)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, "ghost"))
	assert.Zero(t, store.Len())

	_, err := svc.PostMessage(ctx, "visitor-1", models.SenderUser, "hi")
	require.NoError(t, err)
	require.NoError(t, svc.Heartbeat(ctx, "visitor-1"))

	session, err := svc.GetMessages(ctx, "visitor-1")
	require.NoError(t, err)
	assert.True(t, session.IsOnline)
	assert.NotZero(t, session.LastSeen)
}

func TestListSessionsSortedByActivity(t *testing.T) {
	svc := NewChatService(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, "older", models.SenderUser, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond) // distinct millisecond timestamps
	_, err = svc.PostMessage(ctx, "newer", models.SenderUser, "second")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	// Activity on the older session moves it back to the top.
	_, err = svc.PostMessage(ctx, "older", models.SenderUser, "third")
	require.NoError(t, err)

	summaries, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "older", summaries[0].ID)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	assert.Equal(t, "newer", summaries[1].ID)
}
