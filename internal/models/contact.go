package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ===========================================================================
// Contact (Khách hàng)
// Đại diện cho một khách hàng nhắn tin với tenant
// Mỗi contact được identify bằng RemoteAddress (số WhatsApp / JID)
// và là duy nhất trong phạm vi một tenant
// ===========================================================================

// ContactMetadata thông tin bổ sung về khách hàng
type ContactMetadata struct {
	// Source nguồn khách hàng (VD: "organic", "broadcast")
	Source string `json:"source,omitempty"`

	// FirstMessage tin nhắn đầu tiên
	FirstMessage string `json:"first_message,omitempty"`

	// CustomFields các trường tùy chỉnh
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
}

// Value implement driver.Valuer cho JSONB
func (m ContactMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implement sql.Scanner cho JSONB
func (m *ContactMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ContactMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Contact đại diện cho một khách hàng
type Contact struct {
	BaseModel

	// TenantID ID tenant, kết hợp với RemoteAddress tạo unique constraint
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_tenant_remote" json:"tenant_id"`

	// RemoteAddress địa chỉ trên channel (số WhatsApp hoặc group JID)
	RemoteAddress string `gorm:"size:255;not null;uniqueIndex:idx_contacts_tenant_remote" json:"remote_address"`

	// Name tên khách hàng lấy từ push name của channel (nullable)
	Name *string `gorm:"size:255" json:"name,omitempty"`

	// IsGroup contact có phải group chat không
	IsGroup bool `gorm:"default:false" json:"is_group"`

	// Metadata thông tin bổ sung
	Metadata ContactMetadata `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// FirstSeenAt lần đầu tiên liên hệ
	FirstSeenAt time.Time `gorm:"not null;default:now()" json:"first_seen_at"`

	// LastSeenAt lần cuối cùng liên hệ
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	// Relations
	Tenant Tenant `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Chats  []Chat `gorm:"foreignKey:ContactID" json:"chats,omitempty"`
}

// TableName trả về tên bảng
func (Contact) TableName() string {
	return "contacts"
}

// ApplyNameHint cập nhật tên từ hint của channel
// Chỉ ghi đè khi chưa có tên hoặc hint khác rỗng (profile mới nhất thắng)
// Trả về true nếu có thay đổi
func (c *Contact) ApplyNameHint(hint string) bool {
	if hint == "" {
		return false
	}
	if c.Name != nil && *c.Name == hint {
		return false
	}
	c.Name = &hint
	return true
}

// UpdateLastSeen cập nhật thời gian hoạt động gần nhất
func (c *Contact) UpdateLastSeen() {
	now := time.Now()
	c.LastSeenAt = &now
}

// GetDisplayName trả về tên hiển thị
// Nếu không có tên thì trả về RemoteAddress
func (c *Contact) GetDisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.RemoteAddress
}
