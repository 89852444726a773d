package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ===========================================================================
// Tenant (Doanh nghiệp thuê hệ thống)
// Đại diện cho một business trong hệ thống multi-tenant
// Tất cả contacts, chats, messages đều thuộc về một tenant
// ===========================================================================

// TenantStatus trạng thái tenant
type TenantStatus string

const (
	// TenantActive đang hoạt động, được nhận và gửi tin
	TenantActive TenantStatus = "active"

	// TenantSuspended bị tạm ngưng, mọi request bị từ chối
	TenantSuspended TenantStatus = "suspended"
)

// TenantSettings cấu hình cho tenant
type TenantSettings struct {
	// Timezone múi giờ (VD: "Asia/Jakarta")
	Timezone string `json:"timezone,omitempty"`

	// Language ngôn ngữ mặc định (id, en)
	Language string `json:"language,omitempty"`

	// AutomationEnabled có cho phép automation trả lời tự động không
	AutomationEnabled bool `json:"automation_enabled"`

	// EscalationKeywords keywords bổ sung cho heuristic chuyển agent
	EscalationKeywords []string `json:"escalation_keywords,omitempty"`
}

// Value implement driver.Valuer để lưu JSONB vào PostgreSQL
func (s TenantSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implement sql.Scanner để đọc JSONB từ PostgreSQL
func (s *TenantSettings) Scan(value interface{}) error {
	if value == nil {
		*s = TenantSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Tenant đại diện cho một doanh nghiệp trong hệ thống
type Tenant struct {
	BaseModel

	// Name tên doanh nghiệp (VD: "Toko Elektronik Jaya")
	Name string `gorm:"size:255;not null" json:"name"`

	// APIKey credential cho automation engine (n8n), unique toàn hệ thống
	// QUAN TRỌNG: không expose trong JSON response
	APIKey string `gorm:"size:255;uniqueIndex;not null" json:"-"`

	// Status trạng thái: active hoặc suspended
	Status TenantStatus `gorm:"size:20;not null;default:'active';index" json:"status"`

	// SessionID handle của gateway session gắn với tenant (nullable)
	SessionID *string `gorm:"size:255;index" json:"session_id,omitempty"`

	// CloudPhoneID số điện thoại cloud API dùng để route webhook (nullable)
	CloudPhoneID *string `gorm:"size:255;index" json:"cloud_phone_id,omitempty"`

	// Settings cấu hình tenant (JSONB)
	Settings TenantSettings `gorm:"type:jsonb;default:'{}'" json:"settings"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:TenantID" json:"contacts,omitempty"`
	Chats    []Chat    `gorm:"foreignKey:TenantID" json:"chats,omitempty"`
}

// TableName trả về tên bảng trong database
func (Tenant) TableName() string {
	return "tenants"
}

// IsActive kiểm tra tenant có đang hoạt động không
func (t *Tenant) IsActive() bool { return t.Status == TenantActive }

// IsSuspended kiểm tra tenant có bị tạm ngưng không
func (t *Tenant) IsSuspended() bool { return t.Status == TenantSuspended }

// Suspend tạm ngưng tenant
func (t *Tenant) Suspend() {
	t.Status = TenantSuspended
}

// Activate kích hoạt lại tenant
func (t *Tenant) Activate() {
	t.Status = TenantActive
}
