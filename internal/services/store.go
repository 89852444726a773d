package services

import (
	"context"
	"errors"
	"time"

	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Message Store
// Điểm ghi duy nhất cho timeline: mọi tin nhắn (webhook, automation,
// agent, scheduler) đều đi qua Append
// Append idempotent theo (chat_id, channel_message_id): duplicate không
// phải lỗi, trả về message cũ với created=false và không side-effect
// ===========================================================================

// AppendParams tham số cho một lần append
type AppendParams struct {
	// TenantID tenant sở hữu chat (cho realtime event)
	TenantID uuid.UUID

	// Chat chat nhận tin nhắn, cache fields sẽ được cập nhật
	Chat *models.Chat

	// Direction hướng tin nhắn
	Direction models.MessageDirection

	// SenderType loại người gửi
	SenderType models.SenderType

	// Body nội dung text
	Body string

	// ContentType loại nội dung, mặc định text
	ContentType models.ContentType

	// MediaURL URL media nếu có
	MediaURL *string

	// ChannelMessageID ID trên channel để dedup (nil = không dedup)
	ChannelMessageID *string

	// Metadata thông tin bổ sung
	Metadata models.MessageMetadata

	// Timestamp thời điểm tin nhắn, zero = now
	Timestamp time.Time
}

// MessageStore interface cho message persistence
type MessageStore interface {
	// Append ghi tin nhắn vào timeline
	// Trả về (message, created, error); created=false nghĩa là duplicate
	// đã bị suppress, message trả về là bản ghi gốc
	Append(ctx context.Context, params *AppendParams) (*models.Message, bool, error)

	// Timeline trả về messages của chat theo thứ tự insert
	Timeline(ctx context.Context, chatID uuid.UUID, opts repositories.FindOptions) ([]models.Message, int64, error)
}

// messageStore triển khai MessageStore
type messageStore struct {
	messageRepo repositories.MessageRepository
	chatRepo    repositories.ChatRepository
	publisher   realtime.Publisher
	locks       *KeyedMutex
	logger      *zap.Logger
}

// NewMessageStore tạo instance mới của MessageStore
func NewMessageStore(
	messageRepo repositories.MessageRepository,
	chatRepo    repositories.ChatRepository,
	publisher realtime.Publisher,
	logger *zap.Logger,
) MessageStore {
	return &messageStore{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
		publisher:   publisher,
		locks:       NewKeyedMutex(),
		logger:      logger,
	}
}

// Append ghi tin nhắn vào timeline
func (s *messageStore) Append(ctx context.Context, params *AppendParams) (*models.Message, bool, error) {
	if params.Chat == nil {
		return nil, false, apperrors.ErrChatNotFound
	}
	if params.Chat.IsClosed() {
		return nil, false, apperrors.ErrInvalidState
	}

	// Serialize append theo chat: thứ tự timeline = thứ tự gọi Append
	unlock := s.locks.Lock(params.Chat.ID.String())
	defer unlock()

	// Check duplicate trước khi insert
	if params.ChannelMessageID != nil {
		existing, err := s.messageRepo.FindByChannelMessageID(ctx, params.Chat.ID, *params.ChannelMessageID)
		if err == nil {
			s.logger.Debug("duplicate message suppressed",
				zap.String("chat_id", params.Chat.ID.String()),
				zap.String("channel_message_id", *params.ChannelMessageID),
			)
			return existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = models.ContentText
	}
	timestamp := params.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	msg := &models.Message{
		ChatID:           params.Chat.ID,
		Direction:        params.Direction,
		SenderType:       params.SenderType,
		Body:             params.Body,
		ContentType:      contentType,
		MediaURL:         params.MediaURL,
		ChannelMessageID: params.ChannelMessageID,
		Metadata:         params.Metadata,
	}

	// Cache của chat đi cùng transaction với insert; unread tăng bằng SQL
	// phía repository nên bản copy stale của caller không ghi đè counter
	cache := &repositories.ChatCacheUpdate{
		ChatID:             params.Chat.ID,
		LastMessageAt:      timestamp,
		LastMessagePreview: models.PreviewOf(previewText(msg)),
	}
	if params.Direction == models.DirectionIn {
		cache.UnreadDelta = 1
	}

	if err := s.messageRepo.Append(ctx, msg, cache); err != nil {
		// Race với instance khác: unique constraint thắng, refetch bản gốc
		if errors.Is(err, gorm.ErrDuplicatedKey) && params.ChannelMessageID != nil {
			existing, ferr := s.messageRepo.FindByChannelMessageID(ctx, params.Chat.ID, *params.ChannelMessageID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	// Bản copy của caller chỉ cập nhật sau khi persist thành công, cho
	// response và realtime event; giá trị persist là nguồn sự thật
	params.Chat.UpdateLastMessage(previewText(msg), timestamp)
	if params.Direction == models.DirectionIn {
		params.Chat.IncrementUnread()
	}

	s.publishAppend(params.TenantID, params.Chat, msg)

	return msg, true, nil
}

// Timeline trả về messages của chat theo thứ tự insert
func (s *messageStore) Timeline(ctx context.Context, chatID uuid.UUID, opts repositories.FindOptions) ([]models.Message, int64, error) {
	return s.messageRepo.FindByChat(ctx, chatID, opts)
}

// publishAppend phát realtime events sau khi append thành công
// Publish lỗi không ảnh hưởng kết quả append
func (s *messageStore) publishAppend(tenantID uuid.UUID, chat *models.Chat, msg *models.Message) {
	if s.publisher == nil {
		return
	}
	go func() {
		event := &realtime.MessageEvent{
			MessageID:  msg.ID,
			ChatID:     chat.ID,
			Direction:  string(msg.Direction),
			SenderType: string(msg.SenderType),
			Body:       msg.Body,
			CreatedAt:  msg.CreatedAt,
		}
		if err := s.publisher.PublishMessage(tenantID, event); err != nil {
			s.logger.Warn("failed to publish message event", zap.Error(err))
		}

		chatEvent := &realtime.ChatEvent{
			ChatID:      chat.ID,
			Status:      string(chat.Status),
			UnreadCount: chat.UnreadCount,
		}
		if err := s.publisher.PublishChatUpdate(tenantID, chatEvent); err != nil {
			s.logger.Warn("failed to publish chat event", zap.Error(err))
		}
	}()
}

// previewText nội dung dùng cho last message preview
func previewText(msg *models.Message) string {
	if msg.Body != "" {
		return msg.Body
	}
	if msg.MediaURL != nil {
		return "[Media]"
	}
	return ""
}
