package services

import (
	"context"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/escalation"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ===========================================================================
// Inbound Service
// Pipeline xử lý tin nhắn đến từ các channels:
// resolve identity -> append vào timeline -> check escalation keyword
// Webhook handler chỉ việc resolve tenant rồi gọi ProcessMessage
// ===========================================================================

// ProcessResult kết quả xử lý một tin nhắn inbound
type ProcessResult struct {
	// ContactID contact của người gửi
	ContactID uuid.UUID `json:"contact_id"`

	// ContactCreated contact vừa được tạo trong lần xử lý này
	ContactCreated bool `json:"contact_created"`

	// ChatID chat nhận tin nhắn
	ChatID uuid.UUID `json:"chat_id"`

	// MessageID message đã ghi (bản gốc nếu duplicate)
	MessageID uuid.UUID `json:"message_id"`

	// Duplicate tin nhắn đã tồn tại, lần xử lý này không có side-effect
	Duplicate bool `json:"duplicate"`

	// Escalated chat đã được auto-escalate trong lần xử lý này
	Escalated bool `json:"escalated"`
}

// InboundService interface cho inbound processing
type InboundService interface {
	// ProcessMessage xử lý một tin nhắn đã normalize từ channel
	// Idempotent theo (chat, channel_message_id): gọi lại với cùng tin nhắn
	// trả về kết quả cũ với Duplicate=true
	ProcessMessage(ctx context.Context, tenant *models.Tenant, msg *channel.InboundMessage) (*ProcessResult, error)
}

// inboundService triển khai InboundService
type inboundService struct {
	identity IdentityResolver
	store    MessageStore
	detector escalation.Detector
	chats    ChatService
	logger   *zap.Logger
}

// NewInboundService tạo instance mới của InboundService
func NewInboundService(
	identity IdentityResolver,
	store MessageStore,
	detector escalation.Detector,
	chats ChatService,
	logger *zap.Logger,
) InboundService {
	return &inboundService{
		identity: identity,
		store:    store,
		detector: detector,
		chats:    chats,
		logger:   logger,
	}
}

// ProcessMessage xử lý một tin nhắn inbound
func (s *inboundService) ProcessMessage(ctx context.Context, tenant *models.Tenant, msg *channel.InboundMessage) (*ProcessResult, error) {
	if msg == nil || msg.RemoteAddress == "" {
		return nil, apperrors.ErrPayloadInvalid
	}

	// 1. Resolve contact + chat, tạo mới nếu là khách lần đầu nhắn
	contact, chat, err := s.identity.ResolveChat(ctx, tenant.ID, msg.RemoteAddress, msg.SenderName, msg.IsGroup, true)
	if err != nil {
		return nil, err
	}
	contactCreated := contact.CreatedAt.Equal(contact.UpdatedAt)

	// 2. Append vào timeline
	contentType := models.ContentType(msg.ContentType)
	if contentType == "" {
		contentType = models.ContentText
	}

	var channelMessageID *string
	if msg.ChannelMessageID != "" {
		id := msg.ChannelMessageID
		channelMessageID = &id
	}
	var mediaURL *string
	if msg.MediaURL != "" {
		u := msg.MediaURL
		mediaURL = &u
	}

	stored, created, err := s.store.Append(ctx, &AppendParams{
		TenantID:         tenant.ID,
		Chat:             chat,
		Direction:        models.DirectionIn,
		SenderType:       models.SenderCustomer,
		Body:             msg.Body,
		ContentType:      contentType,
		MediaURL:         mediaURL,
		ChannelMessageID: channelMessageID,
		Metadata:         models.MessageMetadata{PushName: msg.SenderName},
		Timestamp:        msg.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		ContactID:      contact.ID,
		ContactCreated: contactCreated,
		ChatID:         chat.ID,
		MessageID:      stored.ID,
		Duplicate:      !created,
	}

	// 3. Duplicate: không chạy lại side-effects
	if !created {
		return result, nil
	}

	// 4. Auto-escalate khi khách gõ keyword muốn gặp người thật
	if !chat.IsEscalated() {
		hit := s.detector.Detect(msg.Body, tenant.Settings.EscalationKeywords)
		if hit.ShouldEscalate {
			reason := "customer requested agent: " + hit.MatchedKeyword
			if _, err := s.chats.Escalate(ctx, tenant.ID, chat.ID, reason); err != nil {
				s.logger.Warn("auto-escalation failed",
					zap.String("chat_id", chat.ID.String()), zap.Error(err))
			} else {
				result.Escalated = true
			}
		}
	}

	s.logger.Info("inbound message processed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("chat_id", chat.ID.String()),
		zap.String("channel_type", msg.ChannelType),
		zap.Bool("duplicate", result.Duplicate),
		zap.Bool("escalated", result.Escalated),
	)
	return result, nil
}
