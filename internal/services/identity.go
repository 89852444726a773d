package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Identity Resolver
// Map (tenant, remote_address) về đúng một Contact và một Chat chưa đóng
// Hai tin nhắn đến đồng thời từ cùng một địa chỉ không bao giờ được tạo
// hai contact hay hai chat: keyed mutex serialize trong process, unique
// constraint của database là chốt chặn cuối cùng giữa các process
// ===========================================================================

// IdentityResolver interface cho identity resolution
type IdentityResolver interface {
	// ResolveChat tìm (hoặc tạo) contact và chat chưa đóng cho remote address
	// createIfMissing=false: không tạo mới, trả về ErrChatNotFound nếu thiếu
	ResolveChat(ctx context.Context, tenantID uuid.UUID, remoteAddress, nameHint string, isGroup, createIfMissing bool) (*models.Contact, *models.Chat, error)
}

// identityResolver triển khai IdentityResolver
type identityResolver struct {
	contactRepo repositories.ContactRepository
	chatRepo    repositories.ChatRepository
	locks       *KeyedMutex
	logger      *zap.Logger
}

// NewIdentityResolver tạo instance mới của IdentityResolver
func NewIdentityResolver(
	contactRepo repositories.ContactRepository,
	chatRepo repositories.ChatRepository,
	logger *zap.Logger,
) IdentityResolver {
	return &identityResolver{
		contactRepo: contactRepo,
		chatRepo:    chatRepo,
		locks:       NewKeyedMutex(),
		logger:      logger,
	}
}

// ResolveChat tìm hoặc tạo contact + chat cho một remote address
func (s *identityResolver) ResolveChat(ctx context.Context, tenantID uuid.UUID, remoteAddress, nameHint string, isGroup, createIfMissing bool) (*models.Contact, *models.Chat, error) {
	if remoteAddress == "" {
		return nil, nil, apperrors.ErrPayloadInvalid
	}

	// Serialize mọi resolve cho cùng (tenant, remote) trong process này
	unlock := s.locks.Lock(lockKey(tenantID, remoteAddress))
	defer unlock()

	contact, err := s.findOrCreateContact(ctx, tenantID, remoteAddress, nameHint, isGroup, createIfMissing)
	if err != nil {
		return nil, nil, err
	}

	chat, err := s.findOrCreateChat(ctx, tenantID, contact.ID, createIfMissing)
	if err != nil {
		return nil, nil, err
	}

	return contact, chat, nil
}

// findOrCreateContact tìm contact, tạo mới nếu được phép
func (s *identityResolver) findOrCreateContact(ctx context.Context, tenantID uuid.UUID, remoteAddress, nameHint string, isGroup, createIfMissing bool) (*models.Contact, error) {
	contact, err := s.contactRepo.FindByRemoteAddress(ctx, tenantID, remoteAddress)
	if err == nil {
		// Refresh tên và thời gian hoạt động từ hint mới nhất
		changed := contact.ApplyNameHint(nameHint)
		contact.UpdateLastSeen()
		if updErr := s.contactRepo.Update(ctx, contact); updErr != nil {
			s.logger.Warn("contact refresh failed", zap.Error(updErr))
		} else if changed {
			s.logger.Debug("contact name refreshed",
				zap.String("contact_id", contact.ID.String()),
				zap.String("name", nameHint),
			)
		}
		return contact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if !createIfMissing {
		return nil, apperrors.ErrChatNotFound
	}

	contact = &models.Contact{
		TenantID:      tenantID,
		RemoteAddress: remoteAddress,
		IsGroup:       isGroup,
		FirstSeenAt:   time.Now(),
	}
	if nameHint != "" {
		contact.Name = &nameHint
	}

	if err := s.contactRepo.Create(ctx, contact); err != nil {
		// Process khác vừa tạo xong: refetch thay vì fail
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.contactRepo.FindByRemoteAddress(ctx, tenantID, remoteAddress)
		}
		return nil, err
	}

	s.logger.Info("contact created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("remote_address", remoteAddress),
	)
	return contact, nil
}

// findOrCreateChat tìm chat chưa đóng của contact, tạo chat open mới nếu
// mọi chat trước đó đã đóng (chat đóng là immutable, không mở lại tự động)
func (s *identityResolver) findOrCreateChat(ctx context.Context, tenantID, contactID uuid.UUID, createIfMissing bool) (*models.Chat, error) {
	chat, err := s.chatRepo.FindActiveByContact(ctx, contactID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if !createIfMissing {
		return nil, apperrors.ErrChatNotFound
	}

	chat = &models.Chat{
		TenantID:  tenantID,
		ContactID: contactID,
		Status:    models.ChatOpen,
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("chat_id", chat.ID.String()),
	)
	return chat, nil
}

// lockKey key serialize theo (tenant, remote)
func lockKey(tenantID uuid.UUID, remoteAddress string) string {
	return fmt.Sprintf("%s:%s", tenantID, remoteAddress)
}
