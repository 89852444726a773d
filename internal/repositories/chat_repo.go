package repositories

import (
	"context"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// Chat Repository GORM Implementation
// ===========================================================================

// chatRepo triển khai ChatRepository với GORM
type chatRepo struct {
	db *gorm.DB
}

// NewChatRepository tạo instance mới của ChatRepository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{db: db}
}

// FindByID tìm chat theo ID
func (r *chatRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).
		Preload("Contact").
		First(&chat, id).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByTenantAndID tìm chat theo ID trong phạm vi tenant
func (r *chatRepo) FindByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindActiveByContact tìm chat chưa đóng của contact
func (r *chatRepo) FindActiveByContact(ctx context.Context, contactID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Where("status IN ?", []models.ChatStatus{models.ChatOpen, models.ChatPending, models.ChatEscalated}).
		Order("created_at DESC").
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByTenant lấy danh sách chats trong tenant
func (r *chatRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID, opts FindOptions) ([]models.Chat, int64, error) {
	opts.SetDefaults()
	if opts.OrderBy == "created_at" {
		// Dashboard sort theo hoạt động gần nhất
		opts.OrderBy = "last_message_at"
	}

	var chats []models.Chat
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("chats.tenant_id = ?", tenantID)

	// Apply filters
	if opts.Filters != nil {
		if status, ok := opts.Filters["status"]; ok {
			query = query.Where("chats.status = ?", status)
		}
		if search, ok := opts.Filters["search"]; ok {
			query = query.
				Joins("JOIN contacts ON contacts.id = chats.contact_id").
				Where("contacts.name ILIKE ? OR contacts.remote_address ILIKE ?",
					"%"+search.(string)+"%", "%"+search.(string)+"%")
		}
	}

	// Count total
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get records
	err := query.
		Preload("Contact").
		Order("chats." + opts.GetOrderClause() + " NULLS LAST").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&chats).Error

	return chats, total, err
}

// Create tạo chat mới
func (r *chatRepo) Create(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// Update cập nhật chat
func (r *chatRepo) Update(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Save(chat).Error
}
