package repositories

import (
	"context"

	"supportdesk-gin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// Session Repository GORM Implementation
// ===========================================================================

// sessionRepo triển khai SessionRepository với GORM
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository tạo instance mới của SessionRepository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

// FindByID tìm session theo ID
func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ChannelSession, error) {
	var session models.ChannelSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindBySessionID tìm session theo gateway handle
func (r *sessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.ChannelSession, error) {
	var session models.ChannelSession
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindAll lấy toàn bộ sessions
func (r *sessionRepo) FindAll(ctx context.Context) ([]models.ChannelSession, error) {
	var sessions []models.ChannelSession
	err := r.db.WithContext(ctx).
		Order("created_at asc").
		Find(&sessions).Error
	return sessions, err
}

// Create tạo session mới
func (r *sessionRepo) Create(ctx context.Context, session *models.ChannelSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Update cập nhật session
func (r *sessionRepo) Update(ctx context.Context, session *models.ChannelSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// Delete xóa session (soft delete)
func (r *sessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.ChannelSession{}, id).Error
}
