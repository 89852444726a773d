package repositories

import (
	"context"
	"time"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
)

// ===========================================================================
// Chat Repository Interface
// Quản lý data access cho chats (cuộc hội thoại)
// ===========================================================================

// ChatRepository interface cho chat data access
type ChatRepository interface {
	// FindByID tìm chat theo ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)

	// FindByTenantAndID tìm chat theo ID trong phạm vi tenant
	// Chat thuộc tenant khác coi như không tồn tại
	FindByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Chat, error)

	// FindActiveByContact tìm chat chưa đóng của contact
	// (status IN open, pending, escalated)
	FindActiveByContact(ctx context.Context, contactID uuid.UUID) (*models.Chat, error)

	// FindByTenant lấy danh sách chats trong tenant
	// Hỗ trợ filter theo status và search theo tên/địa chỉ contact
	FindByTenant(ctx context.Context, tenantID uuid.UUID, opts FindOptions) ([]models.Chat, int64, error)

	// Create tạo chat mới
	Create(ctx context.Context, chat *models.Chat) error

	// Update cập nhật chat
	Update(ctx context.Context, chat *models.Chat) error
}

// ===========================================================================
// Message Repository Interface
// Quản lý data access cho messages
// Append là điểm ghi duy nhất: insert message + cập nhật cache của chat
// trong cùng một transaction
// ===========================================================================

// ChatCacheUpdate cập nhật cache của chat đi kèm một lần append
// UnreadDelta được cộng bằng SQL (unread_count = unread_count + delta) nên
// hai instance append đồng thời không ghi đè counter của nhau
type ChatCacheUpdate struct {
	ChatID             uuid.UUID
	LastMessageAt      time.Time
	LastMessagePreview string
	UnreadDelta        int
}

// MessageRepository interface cho message data access
type MessageRepository interface {
	// FindByID tìm message theo ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error)

	// FindByChannelMessageID tìm message theo channel message ID trong chat
	// Dùng để check duplicate
	FindByChannelMessageID(ctx context.Context, chatID uuid.UUID, channelMessageID string) (*models.Message, error)

	// FindByChat lấy danh sách messages trong chat theo thứ tự insert
	FindByChat(ctx context.Context, chatID uuid.UUID, opts FindOptions) ([]models.Message, int64, error)

	// Append insert message và cập nhật cache của chat trong một transaction
	// Trả về lỗi duplicate nếu (chat_id, channel_message_id) đã tồn tại
	Append(ctx context.Context, msg *models.Message, cache *ChatCacheUpdate) error
}
