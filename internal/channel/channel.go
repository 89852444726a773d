package channel

import (
	"context"
	"time"
)

// ===========================================================================
// Các interfaces cho hệ thống channel messaging
// Channel là một kênh giao tiếp (Gateway, Cloud API, Mock)
// Mọi payload từ webhook được chuẩn hóa thành InboundEvent trước khi
// đi vào pipeline xử lý
// ===========================================================================

// Channel types - tập đóng các loại channel được hỗ trợ
const (
	TypeGateway = "gateway"
	TypeCloud   = "cloud"
	TypeMock    = "mock"
)

// EventKind phân loại sự kiện sau khi normalize
type EventKind string

const (
	// KindMessage tin nhắn từ khách hàng, đi tiếp vào pipeline
	KindMessage EventKind = "message"

	// KindIgnorable sự kiện hợp lệ nhưng không cần xử lý
	// (delivery receipt, read receipt, typing notification)
	KindIgnorable EventKind = "ignorable"

	// KindConnection sự kiện vòng đời session từ gateway
	KindConnection EventKind = "connection"
)

// InboundEvent kết quả normalize một webhook payload
// Kind quyết định nhánh xử lý; chỉ một trong Message/Session khác nil
type InboundEvent struct {
	// Kind loại sự kiện
	Kind EventKind

	// SessionID gateway session nhận sự kiện (nếu có)
	SessionID string

	// Message dữ liệu tin nhắn, chỉ có khi Kind == KindMessage
	Message *InboundMessage

	// Session dữ liệu trạng thái session, chỉ có khi Kind == KindConnection
	Session *SessionUpdate
}

// InboundMessage đại diện cho tin nhắn nhận được từ khách hàng
// Đây là cấu trúc chuẩn hóa, bất kể nguồn gốc từ channel nào
type InboundMessage struct {
	// ChannelType loại channel (gateway/cloud/mock)
	ChannelType string

	// ChannelMessageID là ID tin nhắn gốc từ channel (dùng cho deduplication)
	ChannelMessageID string

	// RemoteAddress địa chỉ người gửi trên channel (số điện thoại / JID)
	RemoteAddress string

	// SenderName tên hiển thị của người gửi (nếu có)
	SenderName string

	// IsGroup tin nhắn đến từ group chat
	IsGroup bool

	// Body nội dung text của tin nhắn
	Body string

	// ContentType loại nội dung (text/image)
	ContentType string

	// MediaURL URL media nếu là tin nhắn ảnh
	MediaURL string

	// Timestamp thời điểm gửi tin nhắn
	Timestamp time.Time

	// RawPayload dữ liệu gốc từ webhook (để debug)
	RawPayload map[string]interface{}
}

// SessionUpdate sự kiện vòng đời session từ gateway
type SessionUpdate struct {
	// SessionID gateway session handle
	SessionID string

	// Status trạng thái mới: connecting, awaiting_link, connected, disconnected
	Status string

	// QRData chuỗi QR thô để render khi awaiting_link
	QRData string

	// RemoteAddress số điện thoại đã liên kết (khi connected)
	RemoteAddress string
}

// OutboundMessage đại diện cho tin nhắn gửi đi cho khách hàng
type OutboundMessage struct {
	// SessionID gateway session dùng để gửi
	SessionID string

	// RemoteAddress địa chỉ người nhận trên channel
	RemoteAddress string

	// Body nội dung text
	Body string

	// ImageURL URL ảnh nếu gửi tin nhắn ảnh
	ImageURL string

	// Caption chú thích kèm ảnh
	Caption string
}

// SendResult kết quả gửi tin nhắn
type SendResult struct {
	// Success tin nhắn đã gửi thành công chưa
	Success bool

	// ChannelMessageID là ID tin nhắn được tạo bởi channel
	ChannelMessageID string

	// Error lỗi nếu có
	Error error
}

// ===========================================================================
// Interfaces chính
// ===========================================================================

// Normalizer chuyển đổi webhook payload thành InboundEvent chuẩn
// Mỗi channel type sẽ có implementation riêng
// Payload không parse được trả về error; payload hợp lệ nhưng không cần
// xử lý trả về event Kind == KindIgnorable với error nil
type Normalizer interface {
	// Normalize chuyển đổi raw payload thành InboundEvent
	Normalize(ctx context.Context, payload map[string]interface{}) (*InboundEvent, error)
}

// Sender gửi tin nhắn đi cho khách hàng
// Mỗi channel type sẽ có implementation riêng để gọi API tương ứng
type Sender interface {
	// Send gửi tin nhắn và trả về kết quả
	// credentials là thông tin xác thực để gọi API
	// Lỗi transport (timeout, không kết nối được) trả qua error return;
	// SendResult.Error dành cho trường hợp channel trả lời và từ chối tin
	Send(ctx context.Context, msg *OutboundMessage, credentials map[string]string) (*SendResult, error)

	// SendPresence cập nhật trạng thái hiện diện (composing/paused)
	// Channel không hỗ trợ presence thì no-op
	SendPresence(ctx context.Context, sessionID, remoteAddress, state string) error
}

// SignatureVerifier xác thực chữ ký webhook
// Đảm bảo webhook đến từ đúng nguồn và không bị tamper
type SignatureVerifier interface {
	// Verify kiểm tra chữ ký của request
	// signature là giá trị từ header (X-Hub-Signature-256, etc.)
	// body là raw body của request
	// secret là secret key để verify
	Verify(signature string, body []byte, secret string) bool
}

// Channel là interface tổng hợp cho một channel adapter
// Mỗi channel type (gateway, cloud, mock) sẽ implement interface này
type Channel interface {
	Normalizer
	Sender
	SignatureVerifier

	// Type trả về loại channel
	Type() string
}
