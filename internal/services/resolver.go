package services

import (
	"context"
	"errors"

	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/repositories"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Tenant Resolver
// Xác định tenant từ credential hoặc routing identity trước khi bất kỳ
// xử lý nào khác diễn ra. Mỗi chiến lược tương ứng một nguồn request:
//   - API key: automation engine
//   - session: webhook từ gateway
//   - cloud phone: webhook từ cloud API
// ===========================================================================

// TenantResolver interface cho việc resolve tenant
type TenantResolver interface {
	// ResolveByAPIKey resolve tenant từ automation API key
	ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)

	// ResolveBySession resolve tenant sở hữu gateway session
	ResolveBySession(ctx context.Context, sessionID string) (*models.Tenant, error)

	// ResolveByCloudPhone resolve tenant từ phone_number_id của cloud webhook
	ResolveByCloudPhone(ctx context.Context, phoneID string) (*models.Tenant, error)
}

// tenantResolver triển khai TenantResolver
type tenantResolver struct {
	tenantRepo repositories.TenantRepository
	logger     *zap.Logger
}

// NewTenantResolver tạo instance mới của TenantResolver
func NewTenantResolver(tenantRepo repositories.TenantRepository, logger *zap.Logger) TenantResolver {
	return &tenantResolver{tenantRepo: tenantRepo, logger: logger}
}

// ResolveByAPIKey resolve tenant từ automation API key
func (s *tenantResolver) ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	if apiKey == "" {
		return nil, apperrors.ErrTenantNotFound
	}
	tenant, err := s.tenantRepo.FindByAPIKey(ctx, apiKey)
	return s.check(tenant, err)
}

// ResolveBySession resolve tenant sở hữu gateway session
func (s *tenantResolver) ResolveBySession(ctx context.Context, sessionID string) (*models.Tenant, error) {
	if sessionID == "" {
		return nil, apperrors.ErrTenantNotFound
	}
	tenant, err := s.tenantRepo.FindBySessionID(ctx, sessionID)
	return s.check(tenant, err)
}

// ResolveByCloudPhone resolve tenant từ phone_number_id
func (s *tenantResolver) ResolveByCloudPhone(ctx context.Context, phoneID string) (*models.Tenant, error) {
	if phoneID == "" {
		return nil, apperrors.ErrTenantNotFound
	}
	tenant, err := s.tenantRepo.FindByCloudPhoneID(ctx, phoneID)
	return s.check(tenant, err)
}

// check chuẩn hóa kết quả lookup: không tìm thấy và suspended là hai lỗi
// phân biệt được để caller xử lý khác nhau
func (s *tenantResolver) check(tenant *models.Tenant, err error) (*models.Tenant, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTenantNotFound
		}
		return nil, err
	}
	if tenant.IsSuspended() {
		s.logger.Warn("request for suspended tenant",
			zap.String("tenant_id", tenant.ID.String()))
		return nil, apperrors.ErrTenantSuspended
	}
	return tenant, nil
}
