package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"supportdesk-gin/internal/channel"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// ===========================================================================
// Session Registry
// Nguồn sự thật runtime cho trạng thái các gateway sessions
// Transitions đến từ webhook của gateway, được validate theo state machine,
// persist xuống database và broadcast qua realtime publisher
// ===========================================================================

// State trạng thái runtime của một session
type State struct {
	// SessionID gateway handle
	SessionID string

	// TenantID tenant sở hữu, nil = session cấp platform
	TenantID *uuid.UUID

	// Status trạng thái hiện tại
	Status models.SessionStatus

	// QRCode QR liên kết dạng data URI base64 PNG (chỉ khi awaiting_link)
	QRCode string

	// RemoteAddress số điện thoại đã liên kết
	RemoteAddress string

	// UpdatedAt thời điểm transition gần nhất
	UpdatedAt time.Time
}

// Registry quản lý trạng thái runtime của tất cả sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State

	repo        repositories.SessionRepository
	publisher   realtime.Publisher
	logger      *zap.Logger
	removeHooks []func(sessionID string)
}

// NewRegistry tạo Registry mới
func NewRegistry(repo repositories.SessionRepository, publisher realtime.Publisher, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]*State),
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Load nạp sessions từ database vào memory khi khởi động
// Trạng thái runtime reset về disconnected cho đến khi gateway báo lại
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range rows {
		row := rows[i]
		r.sessions[row.SessionID] = &State{
			SessionID: row.SessionID,
			TenantID:  row.TenantID,
			Status:    models.SessionDisconnected,
			UpdatedAt: time.Now(),
		}
	}

	r.logger.Info("session registry loaded", zap.Int("sessions", len(rows)))
	return nil
}

// Create đăng ký session mới, trạng thái ban đầu connecting
// Session chờ gateway báo awaiting_link / connected qua webhook
func (r *Registry) Create(ctx context.Context, sessionID string, tenantID *uuid.UUID) (*State, error) {
	row := &models.ChannelSession{
		SessionID: sessionID,
		TenantID:  tenantID,
		Status:    models.SessionConnecting,
	}
	if err := r.repo.Create(ctx, row); err != nil {
		return nil, err
	}

	state := &State{
		SessionID: sessionID,
		TenantID:  tenantID,
		Status:    models.SessionConnecting,
		UpdatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[sessionID] = state
	r.mu.Unlock()

	r.broadcast(state)
	return r.snapshot(state), nil
}

// OnRemove đăng ký hook được gọi sau khi một session bị gỡ
// Scheduler dùng để dọn queue và worker của session đó
func (r *Registry) OnRemove(hook func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeHooks = append(r.removeHooks, hook)
}

// Remove logout và xóa session
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	row, err := r.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return apperrors.ErrNotFound
	}
	if err := r.repo.Delete(ctx, row.ID); err != nil {
		return err
	}

	r.mu.Lock()
	state, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	hooks := r.removeHooks
	r.mu.Unlock()

	if ok {
		gone := *state
		gone.Status = models.SessionDisconnected
		gone.QRCode = ""
		r.broadcast(&gone)
	}
	for _, hook := range hooks {
		hook(sessionID)
	}
	return nil
}

// Apply xử lý một sự kiện vòng đời từ gateway
// Transition không hợp lệ bị từ chối với ErrInvalidState;
// session không tồn tại trả về ErrNotFound (gateway báo session lạ)
func (r *Registry) Apply(ctx context.Context, update *channel.SessionUpdate) (*State, error) {
	next := models.SessionStatus(update.Status)
	switch next {
	case models.SessionConnecting, models.SessionAwaitingLink,
		models.SessionConnected, models.SessionDisconnected:
	default:
		return nil, apperrors.Wrap(apperrors.ErrPayloadInvalid,
			fmt.Sprintf("unknown session status %q", update.Status))
	}

	r.mu.Lock()
	state, ok := r.sessions[update.SessionID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("session update for unknown session",
			zap.String("session_id", update.SessionID))
		return nil, apperrors.ErrNotFound
	}

	if !validTransition(state.Status, next) {
		current := state.Status
		r.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.ErrInvalidState,
			fmt.Sprintf("session %s: %s -> %s", update.SessionID, current, next))
	}

	state.Status = next
	state.UpdatedAt = time.Now()
	switch next {
	case models.SessionAwaitingLink:
		qr, err := renderQR(update.QRData)
		if err != nil {
			r.logger.Warn("qr render failed",
				zap.String("session_id", update.SessionID), zap.Error(err))
		}
		state.QRCode = qr
	case models.SessionConnected:
		state.QRCode = ""
		if update.RemoteAddress != "" {
			state.RemoteAddress = update.RemoteAddress
		}
	case models.SessionDisconnected:
		state.QRCode = ""
	}
	snap := r.snapshot(state)
	r.mu.Unlock()

	if err := r.persist(ctx, snap); err != nil {
		r.logger.Error("session persist failed",
			zap.String("session_id", snap.SessionID), zap.Error(err))
	}

	r.broadcast(snap)

	r.logger.Info("session transition",
		zap.String("session_id", snap.SessionID),
		zap.String("status", string(snap.Status)),
	)
	return snap, nil
}

// IsConnected kiểm tra session có đang connected không
// Scheduler dùng để từ chối enqueue khi session chưa sẵn sàng
func (r *Registry) IsConnected(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[sessionID]
	return ok && state.Status == models.SessionConnected
}

// Get trả về snapshot trạng thái của một session
func (r *Registry) Get(sessionID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return r.snapshot(state), true
}

// List trả về snapshot tất cả sessions
func (r *Registry) List() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.sessions))
	for _, state := range r.sessions {
		out = append(out, r.snapshot(state))
	}
	return out
}

// ===========================================================================
// Internal helpers
// ===========================================================================

// validTransition bảng transition hợp lệ của state machine
// disconnected là trạng thái có thể đến từ bất kỳ đâu (mất kết nối)
func validTransition(from, to models.SessionStatus) bool {
	if to == models.SessionDisconnected {
		return true
	}
	switch from {
	case models.SessionDisconnected:
		return to == models.SessionConnecting
	case models.SessionConnecting:
		return to == models.SessionAwaitingLink || to == models.SessionConnected
	case models.SessionAwaitingLink:
		// QR refresh giữ nguyên awaiting_link
		return to == models.SessionConnected || to == models.SessionAwaitingLink
	case models.SessionConnected:
		return false
	}
	return false
}

// snapshot copy state để trả ra ngoài không dính lock
func (r *Registry) snapshot(state *State) *State {
	copied := *state
	return &copied
}

// persist ghi trạng thái mới nhất xuống database
func (r *Registry) persist(ctx context.Context, state *State) error {
	row, err := r.repo.FindBySessionID(ctx, state.SessionID)
	if err != nil {
		return err
	}
	row.ApplyStatus(state.Status)
	if state.QRCode != "" {
		qr := state.QRCode
		row.QRCode = &qr
	}
	if state.RemoteAddress != "" {
		addr := state.RemoteAddress
		row.RemoteAddress = &addr
	}
	return r.repo.Update(ctx, row)
}

// broadcast phát session event qua realtime publisher
// Session cấp platform (TenantID nil) phát cho tất cả subscribers
func (r *Registry) broadcast(state *State) {
	err := r.publisher.PublishSessionUpdate(state.TenantID, &realtime.SessionEvent{
		SessionID:     state.SessionID,
		Status:        string(state.Status),
		QRCode:        state.QRCode,
		RemoteAddress: state.RemoteAddress,
	})
	if err != nil {
		r.logger.Warn("session event publish failed",
			zap.String("session_id", state.SessionID), zap.Error(err))
	}
}

// renderQR render chuỗi QR thô thành data URI base64 PNG
func renderQR(data string) (string, error) {
	if data == "" {
		return "", nil
	}
	png, err := qrcode.Encode(data, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
