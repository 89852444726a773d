package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ===========================================================================
// Chat (Cuộc hội thoại / ticket)
// Đại diện cho một phiên hỗ trợ giữa khách hàng và tenant
// Một contact có tối đa một chat chưa đóng tại một thời điểm
// ===========================================================================

// ChatStatus trạng thái cuộc hội thoại
type ChatStatus string

const (
	// ChatOpen đang mở, automation có thể tự động trả lời
	ChatOpen ChatStatus = "open"

	// ChatPending đang chờ xử lý thêm
	ChatPending ChatStatus = "pending"

	// ChatEscalated đã chuyển cho agent, automation dừng trả lời
	ChatEscalated ChatStatus = "escalated"

	// ChatClosed đã đóng/hoàn thành
	ChatClosed ChatStatus = "closed"
)

// ChatMetadata thông tin bổ sung về cuộc hội thoại
type ChatMetadata struct {
	// EscalationReason lý do chuyển cho agent
	EscalationReason string `json:"escalation_reason,omitempty"`

	// ClosedReason lý do đóng hội thoại
	ClosedReason string `json:"closed_reason,omitempty"`

	// Notes ghi chú nội bộ của agent
	Notes []string `json:"notes,omitempty"`
}

// Value implement driver.Valuer cho JSONB
func (m ChatMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implement sql.Scanner cho JSONB
func (m *ChatMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ChatMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Chat đại diện cho một cuộc hội thoại
type Chat struct {
	BaseModel

	// TenantID ID tenant
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`

	// ContactID ID khách hàng
	ContactID uuid.UUID `gorm:"type:uuid;not null;index" json:"contact_id"`

	// Status trạng thái: open, pending, escalated, closed
	Status ChatStatus `gorm:"size:20;not null;default:'open';index" json:"status"`

	// UnreadCount số tin nhắn inbound chưa đọc
	UnreadCount int `gorm:"not null;default:0" json:"unread_count"`

	// LastMessageAt thời điểm tin nhắn cuối cùng
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	// LastMessagePreview preview tin nhắn cuối (max 500 ký tự)
	LastMessagePreview *string `gorm:"size:500" json:"last_message_preview,omitempty"`

	// EscalatedAt thời điểm chuyển cho agent
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	// ResolvedAt thời điểm đóng hội thoại
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// Metadata thông tin bổ sung
	Metadata ChatMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// Relations
	Tenant   Tenant    `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Contact  Contact   `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Messages []Message `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// TableName trả về tên bảng
func (Chat) TableName() string {
	return "chats"
}

// IsOpen kiểm tra hội thoại đang mở
func (c *Chat) IsOpen() bool { return c.Status == ChatOpen }

// IsClosed kiểm tra hội thoại đã đóng
func (c *Chat) IsClosed() bool { return c.Status == ChatClosed }

// IsEscalated kiểm tra đã chuyển cho agent chưa
func (c *Chat) IsEscalated() bool { return c.Status == ChatEscalated }

// Escalate chuyển hội thoại cho agent với lý do
func (c *Chat) Escalate(reason string) {
	c.Status = ChatEscalated
	now := time.Now()
	c.EscalatedAt = &now
	c.Metadata.EscalationReason = reason
}

// Close đóng hội thoại với lý do
func (c *Chat) Close(reason string) {
	c.Status = ChatClosed
	now := time.Now()
	c.ResolvedAt = &now
	c.Metadata.ClosedReason = reason
}

// Reopen mở lại hội thoại đã đóng
func (c *Chat) Reopen() {
	c.Status = ChatOpen
	c.ResolvedAt = nil
	c.Metadata.ClosedReason = ""
}

// AddNote thêm ghi chú nội bộ
func (c *Chat) AddNote(note string) {
	if note != "" {
		c.Metadata.Notes = append(c.Metadata.Notes, note)
	}
}

// PreviewOf cắt nội dung về độ dài tối đa của last message preview (500 ký tự)
func PreviewOf(content string) string {
	if len(content) > 500 {
		return content[:497] + "..."
	}
	return content
}

// UpdateLastMessage cập nhật cache tin nhắn cuối
func (c *Chat) UpdateLastMessage(content string, at time.Time) {
	c.LastMessageAt = &at
	preview := PreviewOf(content)
	c.LastMessagePreview = &preview
}

// IncrementUnread tăng số tin chưa đọc (chỉ gọi cho tin inbound)
func (c *Chat) IncrementUnread() {
	c.UnreadCount++
}

// ResetUnread đánh dấu đã đọc hết
func (c *Chat) ResetUnread() {
	c.UnreadCount = 0
}
