package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ===========================================================================
// Gateway Channel
// Adapter cho WhatsApp gateway service (WhatsApp Web protocol)
// Gateway đẩy webhook về backend cho cả tin nhắn lẫn sự kiện vòng đời session
// ===========================================================================

// GatewayChannel implements Channel interface cho WhatsApp gateway
type GatewayChannel struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewGatewayChannel tạo gateway channel mới
func NewGatewayChannel(baseURL, apiKey string, logger *zap.Logger) *GatewayChannel {
	return &GatewayChannel{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Type trả về loại channel
func (c *GatewayChannel) Type() string {
	return TypeGateway
}

// ===========================================================================
// Webhook Payload Structures
// ===========================================================================

// GWWebhookPayload cấu trúc webhook từ gateway
type GWWebhookPayload struct {
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Message   *GWMessageEvent   `json:"message,omitempty"`
	Status    *GWStatusEvent    `json:"status,omitempty"`
	Ack       *GWAckEvent       `json:"ack,omitempty"`
}

// GWMessageEvent tin nhắn từ khách hàng
type GWMessageEvent struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	PushName  string `json:"push_name"`
	Body      string `json:"body"`
	MediaURL  string `json:"media_url,omitempty"`
	IsGroup   bool   `json:"is_group"`
	Timestamp int64  `json:"timestamp"`
}

// GWStatusEvent sự kiện vòng đời session
type GWStatusEvent struct {
	State   string `json:"state"` // connecting, awaiting_link, connected, disconnected
	QR      string `json:"qr,omitempty"`
	Address string `json:"address,omitempty"`
}

// GWAckEvent xác nhận trạng thái gửi (delivered/read)
type GWAckEvent struct {
	MessageID string `json:"message_id"`
	State     string `json:"state"`
}

// ===========================================================================
// Normalize - Parse webhook payload
// ===========================================================================

// Normalize chuyển đổi gateway webhook payload thành InboundEvent chuẩn
// Acks là sự kiện hợp lệ nhưng không cần xử lý -> KindIgnorable
func (c *GatewayChannel) Normalize(ctx context.Context, payload map[string]interface{}) (*InboundEvent, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var gwPayload GWWebhookPayload
	if err := json.Unmarshal(jsonBytes, &gwPayload); err != nil {
		return nil, fmt.Errorf("unmarshal gateway payload: %w", err)
	}

	if gwPayload.SessionID == "" {
		return nil, fmt.Errorf("gateway payload thiếu 'session_id'")
	}

	switch gwPayload.Event {
	case "message":
		if gwPayload.Message == nil || gwPayload.Message.From == "" {
			return nil, fmt.Errorf("gateway message event thiếu dữ liệu")
		}
		msg := gwPayload.Message

		contentType := "text"
		if msg.MediaURL != "" {
			contentType = "image"
		}

		c.logger.Debug("normalized gateway message",
			zap.String("session_id", gwPayload.SessionID),
			zap.String("from", msg.From),
			zap.String("message_id", msg.ID),
		)

		return &InboundEvent{
			Kind:      KindMessage,
			SessionID: gwPayload.SessionID,
			Message: &InboundMessage{
				ChannelType:      TypeGateway,
				ChannelMessageID: msg.ID,
				RemoteAddress:    msg.From,
				SenderName:       msg.PushName,
				IsGroup:          msg.IsGroup,
				Body:             msg.Body,
				ContentType:      contentType,
				MediaURL:         msg.MediaURL,
				Timestamp:        time.Unix(msg.Timestamp, 0),
				RawPayload:       payload,
			},
		}, nil

	case "session.status":
		if gwPayload.Status == nil {
			return nil, fmt.Errorf("gateway status event thiếu dữ liệu")
		}
		return &InboundEvent{
			Kind:      KindConnection,
			SessionID: gwPayload.SessionID,
			Session: &SessionUpdate{
				SessionID:     gwPayload.SessionID,
				Status:        gwPayload.Status.State,
				QRData:        gwPayload.Status.QR,
				RemoteAddress: gwPayload.Status.Address,
			},
		}, nil

	case "message.ack":
		// Delivery/read receipts không cần xử lý
		return &InboundEvent{Kind: KindIgnorable, SessionID: gwPayload.SessionID}, nil

	default:
		return nil, fmt.Errorf("gateway event không hợp lệ: %s", gwPayload.Event)
	}
}

// ===========================================================================
// Send - Gửi tin nhắn qua gateway API
// ===========================================================================

// GWSendRequest request gửi tin nhắn
type GWSendRequest struct {
	To       string `json:"to"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Send gửi tin nhắn qua gateway
func (c *GatewayChannel) Send(ctx context.Context, msg *OutboundMessage, credentials map[string]string) (*SendResult, error) {
	if msg.SessionID == "" {
		return &SendResult{Success: false, Error: fmt.Errorf("missing session_id")}, nil
	}

	gwReq := GWSendRequest{
		To:       msg.RemoteAddress,
		Body:     msg.Body,
		ImageURL: msg.ImageURL,
		Caption:  msg.Caption,
	}

	url := fmt.Sprintf("%s/sessions/%s/messages", c.baseURL, msg.SessionID)
	body, status, err := c.post(ctx, url, gwReq)
	if err != nil {
		// Lỗi transport (timeout, connection refused) đi qua error return
		// để caller phân biệt được với gateway chủ động từ chối tin
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		c.logger.Error("gateway send failed",
			zap.Int("status", status),
			zap.String("body", string(body)),
		)
		return &SendResult{Success: false, Error: fmt.Errorf("gateway api error: %s", string(body))}, nil
	}

	var gwResp struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &gwResp)

	c.logger.Info("gateway message sent",
		zap.String("session_id", msg.SessionID),
		zap.String("to", msg.RemoteAddress),
		zap.String("message_id", gwResp.ID),
	)

	return &SendResult{
		Success:          true,
		ChannelMessageID: gwResp.ID,
	}, nil
}

// SendPresence cập nhật trạng thái hiện diện (composing/paused)
// Lỗi presence không chặn việc gửi tin, caller chỉ log
func (c *GatewayChannel) SendPresence(ctx context.Context, sessionID, remoteAddress, state string) error {
	url := fmt.Sprintf("%s/sessions/%s/presence", c.baseURL, sessionID)
	_, status, err := c.post(ctx, url, map[string]string{
		"to":    remoteAddress,
		"state": state,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("gateway presence error: status %d", status)
	}
	return nil
}

// post gửi POST request với API key header
func (c *GatewayChannel) post(ctx context.Context, url string, payload interface{}) ([]byte, int, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

// ===========================================================================
// Verify - Xác thực webhook signature
// ===========================================================================

// Verify kiểm tra X-Gateway-Signature header (HMAC-SHA256 hex của body)
func (c *GatewayChannel) Verify(signature string, body []byte, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
