package realtime

import (
	"time"

	"github.com/google/uuid"
)

// ===========================================================================
// Realtime Publisher
// Interface chung cho mọi kênh phát sự kiện realtime (websocket hub,
// AMQP bridge). Publish không được block pipeline xử lý tin nhắn
// ===========================================================================

// Publisher interface for realtime events
type Publisher interface {
	// PublishMessage publishes new message event to tenant subscribers
	PublishMessage(tenantID uuid.UUID, event *MessageEvent) error

	// PublishChatUpdate publishes chat state change event
	PublishChatUpdate(tenantID uuid.UUID, event *ChatEvent) error

	// PublishSessionUpdate publishes session lifecycle event
	// tenantID nil = session cấp platform, phát cho tất cả subscribers
	PublishSessionUpdate(tenantID *uuid.UUID, event *SessionEvent) error
}

// MessageEvent event khi có tin nhắn mới
type MessageEvent struct {
	Type       string    `json:"type"`
	MessageID  uuid.UUID `json:"message_id"`
	ChatID     uuid.UUID `json:"chat_id"`
	Direction  string    `json:"direction"`
	SenderType string    `json:"sender_type"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	// Thông tin thêm
	ContactName string `json:"contact_name,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`
}

// ChatEvent event khi chat thay đổi trạng thái
type ChatEvent struct {
	Type        string    `json:"type"`
	ChatID      uuid.UUID `json:"chat_id"`
	Status      string    `json:"status,omitempty"`
	UnreadCount int       `json:"unread_count"`
}

// SessionEvent event khi session thay đổi vòng đời
type SessionEvent struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	QRCode        string `json:"qr_code,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
}

// ===========================================================================
// Noop Publisher (for tests and when realtime is disabled)
// ===========================================================================

// NoopPublisher does nothing (used when realtime is disabled)
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (n *NoopPublisher) PublishMessage(tenantID uuid.UUID, event *MessageEvent) error {
	return nil
}

func (n *NoopPublisher) PublishChatUpdate(tenantID uuid.UUID, event *ChatEvent) error {
	return nil
}

func (n *NoopPublisher) PublishSessionUpdate(tenantID *uuid.UUID, event *SessionEvent) error {
	return nil
}

// ===========================================================================
// Multi Publisher
// Fan-out một event đến nhiều publishers (hub + bridge)
// ===========================================================================

// MultiPublisher phát event đến tất cả publishers con
// Lỗi của một publisher không chặn các publisher còn lại
type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (m *MultiPublisher) PublishMessage(tenantID uuid.UUID, event *MessageEvent) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.PublishMessage(tenantID, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiPublisher) PublishChatUpdate(tenantID uuid.UUID, event *ChatEvent) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.PublishChatUpdate(tenantID, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiPublisher) PublishSessionUpdate(tenantID *uuid.UUID, event *SessionEvent) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.PublishSessionUpdate(tenantID, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
