package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ===========================================================================
// MockChannel là channel adapter dùng để testing
// Không cần credentials thật, simulate việc gửi/nhận tin nhắn
// ===========================================================================

// MockChannel implement Channel interface cho mục đích testing
type MockChannel struct {
	logger *zap.Logger

	mu sync.Mutex

	// sentMessages lưu các tin nhắn đã "gửi" (để testing)
	sentMessages []*OutboundMessage

	// presenceStates lưu các presence update đã gửi
	presenceStates []string

	// SendErr nếu khác nil, Send trả về lỗi này
	SendErr error

	// SendDelay độ trễ giả lập cho mỗi lần Send
	SendDelay time.Duration
}

// NewMockChannel tạo một MockChannel mới
func NewMockChannel(logger *zap.Logger) *MockChannel {
	return &MockChannel{
		logger:       logger,
		sentMessages: make([]*OutboundMessage, 0),
	}
}

// Type trả về loại channel - "mock"
func (m *MockChannel) Type() string {
	return TypeMock
}

// ===========================================================================
// Normalizer implementation
// ===========================================================================

// Normalize chuyển đổi mock webhook payload thành InboundEvent
// Mock payload có cấu trúc đơn giản để dễ test
//
// Expected payload format:
//
//	{
//	    "session_id": "mock-session",
//	    "remote_address": "628123456789",
//	    "sender_name": "Test User",
//	    "message": "Hello!",
//	    "message_id": "msg_001",
//	    "timestamp": 1705487400
//	}
func (m *MockChannel) Normalize(
	ctx context.Context,
	payload map[string]interface{},
) (*InboundEvent, error) {
	sessionID := getString(payload, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("mock payload thiếu 'session_id'")
	}

	// Sự kiện vòng đời session giả lập
	if status := getString(payload, "session_status"); status != "" {
		return &InboundEvent{
			Kind:      KindConnection,
			SessionID: sessionID,
			Session: &SessionUpdate{
				SessionID:     sessionID,
				Status:        status,
				QRData:        getString(payload, "qr"),
				RemoteAddress: getString(payload, "address"),
			},
		}, nil
	}

	// Lấy remote_address (bắt buộc cho message)
	remoteAddress := getString(payload, "remote_address")
	if remoteAddress == "" {
		return nil, fmt.Errorf("mock payload thiếu 'remote_address'")
	}

	// Lấy message content
	content := getString(payload, "message")

	// Lấy message_id (tùy chọn, tự generate nếu không có)
	messageID := getString(payload, "message_id")
	if messageID == "" {
		messageID = fmt.Sprintf("mock_%s_%d", remoteAddress, time.Now().UnixNano())
	}

	// Lấy timestamp (tùy chọn, dùng now nếu không có)
	timestamp := time.Now()
	if ts, ok := payload["timestamp"].(float64); ok {
		timestamp = time.Unix(int64(ts), 0)
	}

	isGroup, _ := payload["is_group"].(bool)

	// Log để debug
	m.logger.Debug("mock channel: đã normalize message",
		zap.String("session_id", sessionID),
		zap.String("remote_address", remoteAddress),
		zap.String("message_id", messageID),
		zap.String("content", truncate(content, 50)),
	)

	return &InboundEvent{
		Kind:      KindMessage,
		SessionID: sessionID,
		Message: &InboundMessage{
			ChannelType:      TypeMock,
			ChannelMessageID: messageID,
			RemoteAddress:    remoteAddress,
			SenderName:       getString(payload, "sender_name"),
			IsGroup:          isGroup,
			Body:             content,
			ContentType:      "text",
			Timestamp:        timestamp,
			RawPayload:       payload,
		},
	}, nil
}

// ===========================================================================
// Sender implementation
// ===========================================================================

// Send "gửi" tin nhắn (thực tế chỉ log và lưu lại để testing)
// Trong mock channel, không có API thật để gọi
func (m *MockChannel) Send(
	ctx context.Context,
	msg *OutboundMessage,
	credentials map[string]string,
) (*SendResult, error) {
	// Validate input
	if msg.RemoteAddress == "" {
		return &SendResult{
			Success: false,
			Error:   fmt.Errorf("remote_address không được để trống"),
		}, nil
	}

	// Giả lập độ trễ / lỗi nếu test yêu cầu
	if m.SendDelay > 0 {
		select {
		case <-time.After(m.SendDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.SendErr != nil {
		return &SendResult{Success: false, Error: m.SendErr}, m.SendErr
	}

	// Generate message ID cho response
	messageID := fmt.Sprintf("mock_sent_%d", time.Now().UnixNano())

	// Log tin nhắn đã gửi
	m.logger.Info("mock channel: đã gửi tin nhắn",
		zap.String("remote_address", msg.RemoteAddress),
		zap.String("message_id", messageID),
		zap.String("content", truncate(msg.Body, 100)),
	)

	// Lưu vào list để có thể verify trong tests
	m.mu.Lock()
	m.sentMessages = append(m.sentMessages, msg)
	m.mu.Unlock()

	return &SendResult{
		Success:          true,
		ChannelMessageID: messageID,
	}, nil
}

// SendPresence ghi nhận presence update (để testing)
func (m *MockChannel) SendPresence(ctx context.Context, sessionID, remoteAddress, state string) error {
	m.mu.Lock()
	m.presenceStates = append(m.presenceStates, state)
	m.mu.Unlock()
	return nil
}

// ===========================================================================
// SignatureVerifier implementation
// ===========================================================================

// Verify luôn trả về true cho mock channel (không cần xác thực)
func (m *MockChannel) Verify(signature string, body []byte, secret string) bool {
	// Mock channel không cần verify signature
	// Trong môi trường development/testing, chấp nhận mọi request
	return true
}

// ===========================================================================
// Testing helpers
// ===========================================================================

// GetSentMessages trả về danh sách tin nhắn đã gửi (để testing)
func (m *MockChannel) GetSentMessages() []*OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*OutboundMessage, len(m.sentMessages))
	copy(out, m.sentMessages)
	return out
}

// GetPresenceStates trả về danh sách presence states đã gửi
func (m *MockChannel) GetPresenceStates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.presenceStates))
	copy(out, m.presenceStates)
	return out
}

// ClearSentMessages xóa danh sách tin nhắn đã gửi
func (m *MockChannel) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = make([]*OutboundMessage, 0)
}

// GetLastSentMessage trả về tin nhắn cuối cùng đã gửi
func (m *MockChannel) GetLastSentMessage() *OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sentMessages) == 0 {
		return nil
	}
	return m.sentMessages[len(m.sentMessages)-1]
}

// ===========================================================================
// Helper functions
// ===========================================================================

// getString lấy string value từ map, trả về empty string nếu không tìm thấy
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// truncate cắt ngắn string nếu dài hơn maxLen
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
