package repositories

import (
	"context"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// Contact Repository GORM Implementation
// ===========================================================================

// contactRepo triển khai ContactRepository với GORM
type contactRepo struct {
	db *gorm.DB
}

// NewContactRepository tạo instance mới của ContactRepository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepo{db: db}
}

// FindByID tìm contact theo ID
func (r *contactRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).First(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByRemoteAddress tìm contact theo địa chỉ channel trong tenant
func (r *contactRepo) FindByRemoteAddress(ctx context.Context, tenantID uuid.UUID, remoteAddress string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_address = ?", tenantID, remoteAddress).
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// Create tạo contact mới
// Unique constraint (tenant_id, remote_address) trả về gorm.ErrDuplicatedKey
// khi bị race, caller refetch bằng FindByRemoteAddress
func (r *contactRepo) Create(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

// Update cập nhật contact
func (r *contactRepo) Update(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Save(contact).Error
}
