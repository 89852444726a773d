package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(messages *fakeMessageRepo, chats *fakeChatRepo, pub *recordPublisher) MessageStore {
	return NewMessageStore(messages, chats, pub, zap.NewNop())
}

func newTestChat(t *testing.T, chats *fakeChatRepo, tenantID uuid.UUID) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		TenantID:  tenantID,
		ContactID: uuid.New(),
		Status:    models.ChatOpen,
	}
	require.NoError(t, chats.Create(context.Background(), chat))
	return chat
}

func strPtr(s string) *string { return &s }

func TestAppend_StoresMessageAndUpdatesChat(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)

	msg, created, err := store.Append(context.Background(), &AppendParams{
		TenantID:         tenantID,
		Chat:             chat,
		Direction:        models.DirectionIn,
		SenderType:       models.SenderCustomer,
		Body:             "halo, barang ready?",
		ChannelMessageID: strPtr("wamid-1"),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ContentText, msg.ContentType)

	assert.Equal(t, 1, chat.UnreadCount)
	require.NotNil(t, chat.LastMessagePreview)
	assert.Equal(t, "halo, barang ready?", *chat.LastMessagePreview)
	assert.NotNil(t, chat.LastMessageAt)
}

func TestAppend_DuplicateSuppressed(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)
	ctx := context.Background()

	params := &AppendParams{
		TenantID:         tenantID,
		Chat:             chat,
		Direction:        models.DirectionIn,
		SenderType:       models.SenderCustomer,
		Body:             "halo",
		ChannelMessageID: strPtr("wamid-1"),
	}

	first, created, err := store.Append(ctx, params)
	require.NoError(t, err)
	require.True(t, created)

	// Redelivery of the same channel message is not an error
	second, created, err := store.Append(ctx, params)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, messages.count())
	assert.Equal(t, 1, chat.UnreadCount, "duplicate must not increment unread")
}

func TestAppend_NilChannelMessageIDNeverDedups(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, created, err := store.Append(ctx, &AppendParams{
			TenantID:   tenantID,
			Chat:       chat,
			Direction:  models.DirectionOut,
			SenderType: models.SenderAgent,
			Body:       "siap kak",
		})
		require.NoError(t, err)
		assert.True(t, created)
	}

	assert.Equal(t, 3, messages.count())
}

func TestAppend_ClosedChatRejected(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)
	chat.Close("done")

	_, _, err := store.Append(context.Background(), &AppendParams{
		TenantID:   tenantID,
		Chat:       chat,
		Direction:  models.DirectionIn,
		SenderType: models.SenderCustomer,
		Body:       "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, 0, messages.count())
}

func TestAppend_OutboundDoesNotIncrementUnread(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)

	_, _, err := store.Append(context.Background(), &AppendParams{
		TenantID:   tenantID,
		Chat:       chat,
		Direction:  models.DirectionOut,
		SenderType: models.SenderAutomation,
		Body:       "terima kasih kak",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadCount)
}

func TestAppend_PublishesEvents(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	pub := newRecordPublisher()
	store := newTestStore(messages, chats, pub)
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)

	_, _, err := store.Append(context.Background(), &AppendParams{
		TenantID:   tenantID,
		Chat:       chat,
		Direction:  models.DirectionIn,
		SenderType: models.SenderCustomer,
		Body:       "halo",
	})
	require.NoError(t, err)

	// Events are published async
	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.messages) == 1 && len(pub.chats) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTimeline_PreservesAppendOrder(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := store.Append(ctx, &AppendParams{
			TenantID:         tenantID,
			Chat:             chat,
			Direction:        models.DirectionIn,
			SenderType:       models.SenderCustomer,
			Body:             fmt.Sprintf("msg-%d", i),
			ChannelMessageID: strPtr(fmt.Sprintf("wamid-%d", i)),
		})
		require.NoError(t, err)
	}

	timeline, total, err := store.Timeline(ctx, chat.ID, repositories.FindOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	for i, msg := range timeline {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Body)
		if i > 0 {
			// Seq is strictly increasing even when timestamps collide
			assert.Greater(t, msg.Seq, timeline[i-1].Seq)
		}
	}
}

func TestAppend_ConcurrentAppendsBothCountUnread(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)
	ctx := context.Background()

	// Two handlers append to the same chat, each holding its own copy of
	// the row fetched before the append
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			own, err := chats.FindByID(ctx, chat.ID)
			assert.NoError(t, err)
			_, _, err = store.Append(ctx, &AppendParams{
				TenantID:         tenantID,
				Chat:             own,
				Direction:        models.DirectionIn,
				SenderType:       models.SenderCustomer,
				Body:             fmt.Sprintf("halo %d", i),
				ChannelMessageID: strPtr(fmt.Sprintf("wamid-%d", i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Neither increment may be lost to the other's stale copy
	stored, err := chats.FindByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UnreadCount)
	assert.Equal(t, 2, messages.count())
}

func TestAppend_LongBodyTruncatedInPreview(t *testing.T) {
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo(chats)
	store := newTestStore(messages, chats, newRecordPublisher())
	tenantID := uuid.New()
	chat := newTestChat(t, chats, tenantID)

	long := ""
	for i := 0; i < 60; i++ {
		long += "0123456789"
	}

	_, _, err := store.Append(context.Background(), &AppendParams{
		TenantID:   tenantID,
		Chat:       chat,
		Direction:  models.DirectionIn,
		SenderType: models.SenderCustomer,
		Body:       long,
	})
	require.NoError(t, err)

	require.NotNil(t, chat.LastMessagePreview)
	assert.Len(t, *chat.LastMessagePreview, 500)
}
