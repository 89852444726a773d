package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ===========================================================================
// Message (Tin nhắn)
// Đại diện cho một tin nhắn trong cuộc hội thoại
// Tin nhắn là immutable sau khi insert; dedup theo (chat_id, channel_message_id)
// ===========================================================================

// MessageDirection hướng tin nhắn
type MessageDirection string

const (
	// DirectionIn tin nhắn từ khách hàng đến hệ thống
	DirectionIn MessageDirection = "in"

	// DirectionOut tin nhắn từ hệ thống đến khách hàng
	DirectionOut MessageDirection = "out"
)

// SenderType loại người gửi
type SenderType string

const (
	// SenderCustomer tin nhắn từ khách hàng
	SenderCustomer SenderType = "customer"

	// SenderAgent tin nhắn từ nhân viên qua dashboard
	SenderAgent SenderType = "agent"

	// SenderAutomation tin nhắn từ automation engine
	SenderAutomation SenderType = "automation"

	// SenderSystem tin nhắn hệ thống (thông báo trạng thái)
	SenderSystem SenderType = "system"
)

// ContentType loại nội dung
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// MessageMetadata thông tin bổ sung về tin nhắn
type MessageMetadata struct {
	// PushName tên hiển thị của người gửi trên channel
	PushName string `json:"push_name,omitempty"`

	// Caption chú thích kèm media
	Caption string `json:"caption,omitempty"`

	// DeliveredAt thời điểm channel xác nhận đã gửi
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// EscalationHit keyword đã kích hoạt escalation (nếu có)
	EscalationHit string `json:"escalation_hit,omitempty"`
}

// Value implement driver.Valuer cho JSONB
func (m MessageMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implement sql.Scanner cho JSONB
func (m *MessageMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = MessageMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Message đại diện cho một tin nhắn
type Message struct {
	BaseModel

	// Seq số thứ tự insert toàn cục (bigserial), quyết định thứ tự timeline
	// vì created_at có thể trùng và UUID không sắp xếp được theo thời gian
	Seq int64 `gorm:"autoIncrement;uniqueIndex" json:"-"`

	// ChatID ID cuộc hội thoại, kết hợp ChannelMessageID tạo unique constraint
	ChatID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_messages_chat_channel_msg" json:"chat_id"`

	// Direction hướng: in (từ khách) hoặc out (từ hệ thống)
	Direction MessageDirection `gorm:"size:10;not null" json:"direction"`

	// SenderType loại người gửi: customer, agent, automation, system
	SenderType SenderType `gorm:"size:20;not null" json:"sender_type"`

	// Body nội dung text
	Body string `gorm:"type:text" json:"body"`

	// ContentType loại nội dung
	ContentType ContentType `gorm:"size:20;default:'text'" json:"content_type"`

	// MediaURL URL media nếu là tin nhắn ảnh (nullable)
	MediaURL *string `gorm:"size:1000" json:"media_url,omitempty"`

	// ChannelMessageID ID tin nhắn trên channel, dùng để dedup (nullable,
	// unique trong phạm vi một chat khi có giá trị)
	ChannelMessageID *string `gorm:"size:255;uniqueIndex:idx_messages_chat_channel_msg" json:"channel_message_id,omitempty"`

	// Metadata thông tin bổ sung
	Metadata MessageMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// Relations
	Chat Chat `gorm:"foreignKey:ChatID" json:"chat,omitempty"`
}

// TableName trả về tên bảng
func (Message) TableName() string {
	return "messages"
}

// IsInbound kiểm tra tin nhắn từ khách hàng
func (m *Message) IsInbound() bool { return m.Direction == DirectionIn }

// IsOutbound kiểm tra tin nhắn từ hệ thống
func (m *Message) IsOutbound() bool { return m.Direction == DirectionOut }

// GetContentPreview trả về preview nội dung
func (m *Message) GetContentPreview(maxLen int) string {
	if m.Body == "" {
		if m.MediaURL != nil {
			return "[Media]"
		}
		return ""
	}
	if len(m.Body) > maxLen {
		return m.Body[:maxLen-3] + "..."
	}
	return m.Body
}
