package services

import (
	"context"
	"errors"

	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Chat Service
// Business logic cho vòng đời hội thoại: list, đọc timeline, escalate,
// close, mark read. Dashboard thao tác theo chat ID, automation engine
// thao tác theo remote_address (các method *ByRemote)
// ===========================================================================

// ChatService interface cho chat business logic
type ChatService interface {
	// List lấy danh sách chats của tenant, sắp theo hoạt động mới nhất
	List(ctx context.Context, tenantID uuid.UUID, req *dto.ListChatsRequest) ([]models.Chat, int64, error)

	// Get lấy một chat trong phạm vi tenant
	Get(ctx context.Context, tenantID, chatID uuid.UUID) (*models.Chat, error)

	// Timeline lấy messages của chat theo thứ tự insert
	Timeline(ctx context.Context, tenantID, chatID uuid.UUID, page *dto.PaginationRequest) ([]models.Message, int64, error)

	// MarkRead đánh dấu chat đã đọc hết
	MarkRead(ctx context.Context, tenantID, chatID uuid.UUID) (*models.Chat, error)

	// Escalate chuyển chat cho agent; chat đã đóng trả về ErrInvalidState
	Escalate(ctx context.Context, tenantID, chatID uuid.UUID, reason string) (*models.Chat, error)

	// Close đóng chat; đóng chat đã đóng là no-op
	Close(ctx context.Context, tenantID, chatID uuid.UUID, reason string) (*models.Chat, error)

	// EscalationQueue danh sách chats đang chờ agent, cũ nhất trước
	EscalationQueue(ctx context.Context, tenantID uuid.UUID, page *dto.PaginationRequest) ([]models.Chat, int64, error)

	// EscalateByRemote escalate chat của một remote address (automation)
	// Không có chat chưa đóng trả về ErrChatNotFound
	EscalateByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress, reason string) (*models.Chat, error)

	// CloseByRemote đóng chat của một remote address (automation)
	CloseByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress, reason string) (*models.Chat, error)

	// TimelineByRemote lấy chat + messages của một remote address (automation)
	TimelineByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress string, page *dto.PaginationRequest) (*models.Chat, []models.Message, int64, error)
}

// chatService triển khai ChatService
type chatService struct {
	chatRepo  repositories.ChatRepository
	store     MessageStore
	identity  IdentityResolver
	publisher realtime.Publisher
	logger    *zap.Logger
}

// NewChatService tạo instance mới của ChatService
func NewChatService(
	chatRepo repositories.ChatRepository,
	store MessageStore,
	identity IdentityResolver,
	publisher realtime.Publisher,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		chatRepo:  chatRepo,
		store:     store,
		identity:  identity,
		publisher: publisher,
		logger:    logger,
	}
}

// List lấy danh sách chats của tenant
func (s *chatService) List(ctx context.Context, tenantID uuid.UUID, req *dto.ListChatsRequest) ([]models.Chat, int64, error) {
	req.SetDefaults()

	opts := repositories.FindOptions{
		Offset:   req.Offset(),
		Limit:    req.Limit,
		Preloads: []string{"Contact"},
		Filters:  map[string]interface{}{},
	}
	if req.Status != "" {
		opts.Filters["status"] = req.Status
	}
	if req.Search != "" {
		opts.Filters["search"] = req.Search
	}

	return s.chatRepo.FindByTenant(ctx, tenantID, opts)
}

// Get lấy một chat trong phạm vi tenant
func (s *chatService) Get(ctx context.Context, tenantID, chatID uuid.UUID) (*models.Chat, error) {
	return s.findChat(ctx, tenantID, chatID)
}

// Timeline lấy messages của chat
func (s *chatService) Timeline(ctx context.Context, tenantID, chatID uuid.UUID, page *dto.PaginationRequest) ([]models.Message, int64, error) {
	chat, err := s.findChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, 0, err
	}

	page.SetDefaults()
	return s.store.Timeline(ctx, chat.ID, repositories.FindOptions{
		Offset: page.Offset(),
		Limit:  page.Limit,
	})
}

// MarkRead đánh dấu chat đã đọc hết
func (s *chatService) MarkRead(ctx context.Context, tenantID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.findChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UnreadCount == 0 {
		return chat, nil
	}

	chat.ResetUnread()
	if err := s.chatRepo.Update(ctx, chat); err != nil {
		return nil, err
	}

	s.publishUpdate(tenantID, chat)
	return chat, nil
}

// Escalate chuyển chat cho agent
func (s *chatService) Escalate(ctx context.Context, tenantID, chatID uuid.UUID, reason string) (*models.Chat, error) {
	chat, err := s.findChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, tenantID, chat, reason)
}

// Close đóng chat
func (s *chatService) Close(ctx context.Context, tenantID, chatID uuid.UUID, reason string) (*models.Chat, error) {
	chat, err := s.findChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, tenantID, chat, reason)
}

// EscalationQueue danh sách chats đang chờ agent
// Sắp theo escalated_at tăng dần: chat chờ lâu nhất đứng đầu
func (s *chatService) EscalationQueue(ctx context.Context, tenantID uuid.UUID, page *dto.PaginationRequest) ([]models.Chat, int64, error) {
	page.SetDefaults()

	return s.chatRepo.FindByTenant(ctx, tenantID, repositories.FindOptions{
		Offset:   page.Offset(),
		Limit:    page.Limit,
		OrderBy:  "escalated_at",
		OrderDir: "asc",
		Preloads: []string{"Contact"},
		Filters: map[string]interface{}{
			"status": string(models.ChatEscalated),
		},
	})
}

// EscalateByRemote escalate chat của một remote address
func (s *chatService) EscalateByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress, reason string) (*models.Chat, error) {
	_, chat, err := s.identity.ResolveChat(ctx, tenantID, remoteAddress, "", false, false)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, tenantID, chat, reason)
}

// CloseByRemote đóng chat của một remote address
func (s *chatService) CloseByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress, reason string) (*models.Chat, error) {
	_, chat, err := s.identity.ResolveChat(ctx, tenantID, remoteAddress, "", false, false)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, tenantID, chat, reason)
}

// TimelineByRemote lấy chat + messages của một remote address
func (s *chatService) TimelineByRemote(ctx context.Context, tenantID uuid.UUID, remoteAddress string, page *dto.PaginationRequest) (*models.Chat, []models.Message, int64, error) {
	_, chat, err := s.identity.ResolveChat(ctx, tenantID, remoteAddress, "", false, false)
	if err != nil {
		return nil, nil, 0, err
	}

	page.SetDefaults()
	messages, total, err := s.store.Timeline(ctx, chat.ID, repositories.FindOptions{
		Offset: page.Offset(),
		Limit:  page.Limit,
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return chat, messages, total, nil
}

// ===========================================================================
// Internal helpers
// ===========================================================================

// findChat tìm chat trong phạm vi tenant, map not-found về ErrChatNotFound
func (s *chatService) findChat(ctx context.Context, tenantID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chatRepo.FindByTenantAndID(ctx, tenantID, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

// escalate thực hiện transition sang escalated
// Chat đã escalated là no-op, chat đã đóng là lỗi
func (s *chatService) escalate(ctx context.Context, tenantID uuid.UUID, chat *models.Chat, reason string) (*models.Chat, error) {
	if chat.IsClosed() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "cannot escalate closed chat")
	}
	if chat.IsEscalated() {
		return chat, nil
	}

	chat.Escalate(reason)
	if err := s.chatRepo.Update(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat escalated",
		zap.String("chat_id", chat.ID.String()),
		zap.String("reason", reason),
	)
	s.publishUpdate(tenantID, chat)
	return chat, nil
}

// close thực hiện transition sang closed, no-op nếu đã đóng
func (s *chatService) close(ctx context.Context, tenantID uuid.UUID, chat *models.Chat, reason string) (*models.Chat, error) {
	if chat.IsClosed() {
		return chat, nil
	}

	chat.Close(reason)
	if err := s.chatRepo.Update(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat closed",
		zap.String("chat_id", chat.ID.String()),
		zap.String("reason", reason),
	)
	s.publishUpdate(tenantID, chat)
	return chat, nil
}

// publishUpdate phát chat update event, lỗi publish không chặn response
func (s *chatService) publishUpdate(tenantID uuid.UUID, chat *models.Chat) {
	if s.publisher == nil {
		return
	}
	go func() {
		err := s.publisher.PublishChatUpdate(tenantID, &realtime.ChatEvent{
			ChatID:      chat.ID,
			Status:      string(chat.Status),
			UnreadCount: chat.UnreadCount,
		})
		if err != nil {
			s.logger.Warn("failed to publish chat update", zap.Error(err))
		}
	}()
}
