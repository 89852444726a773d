package dto

import "github.com/google/uuid"

// ===========================================================================
// Request DTOs (Data Transfer Objects)
// Các struct dùng để validate và parse request body/query
// ===========================================================================

// PaginationRequest phân trang cho các API list
type PaginationRequest struct {
	// Page số trang hiện tại (bắt đầu từ 1)
	Page int `form:"page" binding:"min=0"`

	// Limit số record mỗi trang (tối đa 100)
	Limit int `form:"limit" binding:"min=0,max=100"`
}

// SetDefaults set giá trị mặc định cho pagination
func (p *PaginationRequest) SetDefaults() {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
}

// Offset tính offset cho database query
func (p *PaginationRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ===========================================================================
// Chat Requests (dashboard)
// ===========================================================================

// ListChatsRequest request lấy danh sách hội thoại
type ListChatsRequest struct {
	PaginationRequest

	// Status filter theo trạng thái
	Status string `form:"status" binding:"omitempty,oneof=open pending escalated closed"`

	// Search từ khóa tìm kiếm theo tên/số khách hàng
	Search string `form:"q" binding:"max=100"`
}

// AgentSendRequest request agent gửi tin từ dashboard
type AgentSendRequest struct {
	// Body nội dung text (bắt buộc, 1-5000 ký tự)
	Body string `json:"body" binding:"required,min=1,max=5000"`
}

// EscalateChatRequest request chuyển chat cho agent từ dashboard
type EscalateChatRequest struct {
	// Reason lý do escalate
	Reason string `json:"reason" binding:"max=500"`
}

// CloseChatRequest request đóng chat từ dashboard
type CloseChatRequest struct {
	// Reason lý do đóng
	Reason string `json:"reason" binding:"max=500"`
}

// ===========================================================================
// Automation Requests (n8n qua X-API-Key)
// Khách hàng được identify bằng remote_address trong phạm vi tenant
// ===========================================================================

// LogMessageRequest request ghi lại một tin nhắn đã xử lý bởi automation
type LogMessageRequest struct {
	// RemoteAddress địa chỉ khách hàng trên channel (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required,max=255"`

	// Body nội dung tin nhắn
	Body string `json:"body" binding:"required,max=5000"`

	// Direction hướng tin (mặc định: in)
	Direction string `json:"direction" binding:"omitempty,oneof=in out"`

	// SenderName tên hiển thị của khách (tùy chọn)
	SenderName string `json:"sender_name" binding:"max=255"`

	// ChannelMessageID ID tin nhắn trên channel để dedup (tùy chọn)
	ChannelMessageID *string `json:"channel_message_id" binding:"omitempty,max=255"`

	// MediaURL URL media nếu có
	MediaURL *string `json:"media_url" binding:"omitempty,max=1000"`
}

// LogMessageBulkRequest request ghi nhiều tin nhắn một lần
// Từng item xử lý độc lập, item lỗi không ảnh hưởng item khác
type LogMessageBulkRequest struct {
	Messages []LogMessageRequest `json:"messages" binding:"required,min=1,max=100,dive"`
}

// AutomationSendRequest request automation gửi tin text cho khách
type AutomationSendRequest struct {
	// RemoteAddress địa chỉ khách hàng (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required,max=255"`

	// Body nội dung text (bắt buộc)
	Body string `json:"body" binding:"required,min=1,max=5000"`
}

// AutomationSendImageRequest request automation gửi ảnh cho khách
type AutomationSendImageRequest struct {
	// RemoteAddress địa chỉ khách hàng (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required,max=255"`

	// ImageURL URL ảnh (bắt buộc)
	ImageURL string `json:"image_url" binding:"required,url,max=1000"`

	// Caption chú thích kèm ảnh
	Caption string `json:"caption" binding:"max=5000"`
}

// AutomationEscalateRequest request chuyển chat cho agent
// Yêu cầu chat đang tồn tại và chưa đóng
type AutomationEscalateRequest struct {
	// RemoteAddress địa chỉ khách hàng (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required,max=255"`

	// Reason lý do escalate
	Reason string `json:"reason" binding:"max=500"`
}

// AutomationCloseRequest request đóng chat của khách
type AutomationCloseRequest struct {
	// RemoteAddress địa chỉ khách hàng (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required,max=255"`

	// Reason lý do đóng
	Reason string `json:"reason" binding:"max=500"`
}

// ===========================================================================
// Session Requests
// ===========================================================================

// CreateSessionRequest request tạo session gateway mới
type CreateSessionRequest struct {
	// SessionID handle trên gateway (bắt buộc, unique)
	SessionID string `json:"session_id" binding:"required,min=3,max=255"`

	// TenantID tenant sở hữu session, bỏ trống = session cấp platform
	TenantID *uuid.UUID `json:"tenant_id"`
}
