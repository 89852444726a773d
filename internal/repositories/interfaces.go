package repositories

import (
	"context"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
)

// ===========================================================================
// Tenant Repository Interface
// Quản lý data access cho tenants, bao gồm các lookup dùng để resolve
// tenant từ credential hoặc routing identity
// ===========================================================================

// TenantRepository interface cho tenant data access
type TenantRepository interface {
	// FindByID tìm tenant theo ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// FindByAPIKey tìm tenant theo API key (automation credential)
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)

	// FindBySessionID tìm tenant sở hữu gateway session
	FindBySessionID(ctx context.Context, sessionID string) (*models.Tenant, error)

	// FindByCloudPhoneID tìm tenant theo số điện thoại cloud API
	FindByCloudPhoneID(ctx context.Context, phoneID string) (*models.Tenant, error)

	// Create tạo tenant mới
	Create(ctx context.Context, tenant *models.Tenant) error

	// Update cập nhật tenant
	Update(ctx context.Context, tenant *models.Tenant) error
}

// ===========================================================================
// Session Repository Interface
// Quản lý data access cho channel sessions (bản ghi persistent của
// trạng thái session, trạng thái runtime nằm ở session registry)
// ===========================================================================

// SessionRepository interface cho channel session data access
type SessionRepository interface {
	// FindByID tìm session theo ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.ChannelSession, error)

	// FindBySessionID tìm session theo gateway handle
	FindBySessionID(ctx context.Context, sessionID string) (*models.ChannelSession, error)

	// FindAll lấy toàn bộ sessions
	FindAll(ctx context.Context) ([]models.ChannelSession, error)

	// Create tạo session mới
	Create(ctx context.Context, session *models.ChannelSession) error

	// Update cập nhật session
	Update(ctx context.Context, session *models.ChannelSession) error

	// Delete xóa session (soft delete)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ===========================================================================
// Contact Repository Interface
// Quản lý data access cho contacts
// Unique constraint (tenant_id, remote_address) là chốt chặn cuối cùng
// chống race tạo trùng contact
// ===========================================================================

// ContactRepository interface cho contact data access
type ContactRepository interface {
	// FindByID tìm contact theo ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)

	// FindByRemoteAddress tìm contact theo địa chỉ channel trong tenant
	FindByRemoteAddress(ctx context.Context, tenantID uuid.UUID, remoteAddress string) (*models.Contact, error)

	// Create tạo contact mới, trả về lỗi duplicate nếu vi phạm unique constraint
	Create(ctx context.Context, contact *models.Contact) error

	// Update cập nhật contact
	Update(ctx context.Context, contact *models.Contact) error
}
