package models

import (
	"time"

	"github.com/google/uuid"
)

// ===========================================================================
// ChannelSession (Phiên kết nối kênh chat)
// Đại diện cho một session trên gateway (WhatsApp Web protocol)
// Session có thể thuộc một tenant, hoặc session cấp platform (TenantID = nil)
// dùng cho thông báo vận hành
// ===========================================================================

// SessionStatus trạng thái vòng đời session
type SessionStatus string

const (
	// SessionDisconnected chưa kết nối hoặc đã mất kết nối
	SessionDisconnected SessionStatus = "disconnected"

	// SessionConnecting đang khởi tạo kết nối với gateway
	SessionConnecting SessionStatus = "connecting"

	// SessionAwaitingLink chờ user quét QR để liên kết thiết bị
	SessionAwaitingLink SessionStatus = "awaiting_link"

	// SessionConnected đã kết nối, có thể gửi/nhận tin
	SessionConnected SessionStatus = "connected"
)

// ChannelSession đại diện cho một phiên kết nối gateway
type ChannelSession struct {
	BaseModel

	// SessionID handle duy nhất trên gateway (VD: "toko-jaya-01")
	SessionID string `gorm:"size:255;uniqueIndex;not null" json:"session_id"`

	// TenantID tenant sở hữu session, nil = session cấp platform
	TenantID *uuid.UUID `gorm:"type:uuid;index" json:"tenant_id,omitempty"`

	// Status trạng thái vòng đời (bản ghi phản ánh trạng thái cuối được biết,
	// trạng thái runtime nằm ở session registry)
	Status SessionStatus `gorm:"size:30;not null;default:'disconnected';index" json:"status"`

	// QRCode QR liên kết thiết bị dạng base64 PNG, chỉ có khi awaiting_link
	QRCode *string `gorm:"type:text" json:"qr_code,omitempty"`

	// RemoteAddress số điện thoại đã liên kết (sau khi connected)
	RemoteAddress *string `gorm:"size:255" json:"remote_address,omitempty"`

	// LastConnectedAt lần cuối session đạt trạng thái connected
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`

	// Relations
	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
}

// TableName trả về tên bảng
func (ChannelSession) TableName() string {
	return "channel_sessions"
}

// IsConnected kiểm tra session có đang kết nối không
func (s *ChannelSession) IsConnected() bool { return s.Status == SessionConnected }

// IsPlatform kiểm tra có phải session cấp platform không
func (s *ChannelSession) IsPlatform() bool { return s.TenantID == nil }

// ApplyStatus cập nhật trạng thái kèm side-effects tương ứng
// connected: ghi nhận thời điểm, xóa QR; disconnected: xóa QR
func (s *ChannelSession) ApplyStatus(status SessionStatus) {
	s.Status = status
	switch status {
	case SessionConnected:
		now := time.Now()
		s.LastConnectedAt = &now
		s.QRCode = nil
	case SessionDisconnected:
		s.QRCode = nil
	}
}
