package repositories

import (
	"context"
	"time"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// Message Repository GORM Implementation
// ===========================================================================

// messageRepo triển khai MessageRepository với GORM
type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepository tạo instance mới của MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

// FindByID tìm message theo ID
func (r *messageRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByChannelMessageID tìm message theo channel message ID trong chat
func (r *messageRepo) FindByChannelMessageID(ctx context.Context, chatID uuid.UUID, channelMessageID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND channel_message_id = ?", chatID, channelMessageID).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByChat lấy danh sách messages trong chat
// Sắp xếp theo seq: cột bigserial cấp số theo thứ tự insert nên hai tin
// cùng timestamp vẫn có thứ tự ổn định
func (r *messageRepo) FindByChat(ctx context.Context, chatID uuid.UUID, opts FindOptions) ([]models.Message, int64, error) {
	opts.SetDefaults()

	var messages []models.Message
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("chat_id = ?", chatID)

	// Count total
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get records
	err := query.
		Order("seq asc").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&messages).Error

	return messages, total, err
}

// Append insert message và cập nhật cache của chat trong một transaction
// Unique constraint (chat_id, channel_message_id) trả về gorm.ErrDuplicatedKey
// khi message đã tồn tại, transaction rollback toàn bộ
// Unread counter tăng bằng SQL thay vì save cả row: mỗi handler giữ một bản
// copy riêng của chat nên whole-row save sẽ ghi đè increment của nhau
func (r *messageRepo) Append(ctx context.Context, msg *models.Message, cache *ChatCacheUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if cache != nil {
			updates := map[string]interface{}{
				"last_message_at":      cache.LastMessageAt,
				"last_message_preview": cache.LastMessagePreview,
				"updated_at":           time.Now(),
			}
			if cache.UnreadDelta != 0 {
				updates["unread_count"] = gorm.Expr("unread_count + ?", cache.UnreadDelta)
			}
			if err := tx.Model(&models.Chat{}).
				Where("id = ?", cache.ChatID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
