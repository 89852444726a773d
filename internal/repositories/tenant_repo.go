package repositories

import (
	"context"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// Tenant Repository GORM Implementation
// ===========================================================================

// tenantRepo triển khai TenantRepository với GORM
type tenantRepo struct {
	db *gorm.DB
}

// NewTenantRepository tạo instance mới của TenantRepository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepo{db: db}
}

// FindByID tìm tenant theo ID
func (r *tenantRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByAPIKey tìm tenant theo API key
func (r *tenantRepo) FindByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("api_key = ?", apiKey).
		First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindBySessionID tìm tenant sở hữu gateway session
func (r *tenantRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByCloudPhoneID tìm tenant theo số điện thoại cloud API
func (r *tenantRepo) FindByCloudPhoneID(ctx context.Context, phoneID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("cloud_phone_id = ?", phoneID).
		First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Create tạo tenant mới
func (r *tenantRepo) Create(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

// Update cập nhật tenant
func (r *tenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}
