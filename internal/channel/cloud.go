package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ===========================================================================
// Cloud Channel
// Adapter để nhận và gửi tin nhắn qua WhatsApp Cloud API (Meta Graph API)
// Webhook được route về tenant theo phone_number_id trong payload
// ===========================================================================

// CloudChannel implements Channel interface cho WhatsApp Cloud API
type CloudChannel struct {
	baseURL string
	logger  *zap.Logger
}

// NewCloudChannel tạo cloud channel mới
func NewCloudChannel(baseURL string, logger *zap.Logger) *CloudChannel {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &CloudChannel{
		baseURL: baseURL,
		logger:  logger,
	}
}

// Type trả về loại channel
func (c *CloudChannel) Type() string {
	return TypeCloud
}

// ===========================================================================
// Webhook Payload Structures
// ===========================================================================

// CloudWebhookPayload cấu trúc webhook từ Meta
type CloudWebhookPayload struct {
	Object string             `json:"object"`
	Entry  []CloudWebhookEntry `json:"entry"`
}

// CloudWebhookEntry một entry trong webhook
type CloudWebhookEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

// CloudChange một thay đổi trong entry
type CloudChange struct {
	Field string     `json:"field"`
	Value CloudValue `json:"value"`
}

// CloudValue dữ liệu chính của change
type CloudValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         CloudMetadata   `json:"metadata"`
	Contacts         []CloudContact  `json:"contacts,omitempty"`
	Messages         []CloudMessage  `json:"messages,omitempty"`
	Statuses         []CloudStatus   `json:"statuses,omitempty"`
}

// CloudMetadata metadata routing của webhook
type CloudMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// CloudContact thông tin người gửi
type CloudContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// CloudMessage tin nhắn từ khách hàng
type CloudMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption,omitempty"`
	} `json:"image,omitempty"`
}

// CloudStatus cập nhật trạng thái delivery (sent/delivered/read)
type CloudStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ===========================================================================
// Normalize - Parse webhook payload
// ===========================================================================

// Normalize chuyển đổi cloud webhook payload thành InboundEvent chuẩn
// Status callbacks là sự kiện hợp lệ nhưng không cần xử lý -> KindIgnorable
func (c *CloudChannel) Normalize(ctx context.Context, payload map[string]interface{}) (*InboundEvent, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var cloudPayload CloudWebhookPayload
	if err := json.Unmarshal(jsonBytes, &cloudPayload); err != nil {
		return nil, fmt.Errorf("unmarshal cloud payload: %w", err)
	}

	if cloudPayload.Object != "whatsapp_business_account" {
		return nil, fmt.Errorf("invalid object type: %s", cloudPayload.Object)
	}

	if len(cloudPayload.Entry) == 0 || len(cloudPayload.Entry[0].Changes) == 0 {
		return nil, fmt.Errorf("no changes in payload")
	}

	value := cloudPayload.Entry[0].Changes[0].Value

	// Status callback -> bỏ qua
	if len(value.Messages) == 0 {
		if len(value.Statuses) > 0 {
			return &InboundEvent{Kind: KindIgnorable, SessionID: value.Metadata.PhoneNumberID}, nil
		}
		return nil, fmt.Errorf("no messages in payload")
	}

	msg := value.Messages[0]

	// Lấy tên từ contacts nếu có
	senderName := ""
	for _, contact := range value.Contacts {
		if contact.WaID == msg.From {
			senderName = contact.Profile.Name
			break
		}
	}

	inbound := &InboundMessage{
		ChannelType:      TypeCloud,
		ChannelMessageID: msg.ID,
		RemoteAddress:    msg.From,
		SenderName:       senderName,
		ContentType:      "text",
		RawPayload:       payload,
	}

	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		inbound.Timestamp = time.Unix(ts, 0)
	} else {
		inbound.Timestamp = time.Now()
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			inbound.Body = msg.Text.Body
		}
	case "image":
		inbound.ContentType = "image"
		if msg.Image != nil {
			inbound.Body = msg.Image.Caption
			// Media ID cần resolve qua Graph API, lưu dạng reference
			inbound.MediaURL = fmt.Sprintf("media:%s", msg.Image.ID)
		}
	default:
		// Sticker, location, v.v. chưa hỗ trợ -> bỏ qua
		return &InboundEvent{Kind: KindIgnorable, SessionID: value.Metadata.PhoneNumberID}, nil
	}

	c.logger.Debug("normalized cloud message",
		zap.String("phone_number_id", value.Metadata.PhoneNumberID),
		zap.String("from", msg.From),
		zap.String("message_id", msg.ID),
	)

	return &InboundEvent{
		Kind: KindMessage,
		// Cloud channel không có gateway session, dùng phone_number_id
		// làm routing identity
		SessionID: value.Metadata.PhoneNumberID,
		Message:   inbound,
	}, nil
}

// ===========================================================================
// Send - Gửi tin nhắn qua Graph API
// ===========================================================================

// CloudSendRequest request gửi tin nhắn
type CloudSendRequest struct {
	MessagingProduct string         `json:"messaging_product"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             *CloudSendText `json:"text,omitempty"`
	Image            *CloudSendImg  `json:"image,omitempty"`
}

// CloudSendText nội dung text gửi đi
type CloudSendText struct {
	Body string `json:"body"`
}

// CloudSendImg ảnh gửi đi
type CloudSendImg struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// Send gửi tin nhắn qua WhatsApp Cloud API
// credentials cần "phone_number_id" và "access_token"
func (c *CloudChannel) Send(ctx context.Context, msg *OutboundMessage, credentials map[string]string) (*SendResult, error) {
	phoneNumberID := credentials["phone_number_id"]
	accessToken := credentials["access_token"]
	if phoneNumberID == "" || accessToken == "" {
		return &SendResult{Success: false, Error: fmt.Errorf("missing cloud credentials")}, nil
	}

	cloudReq := CloudSendRequest{
		MessagingProduct: "whatsapp",
		To:               msg.RemoteAddress,
	}
	if msg.ImageURL != "" {
		cloudReq.Type = "image"
		cloudReq.Image = &CloudSendImg{Link: msg.ImageURL, Caption: msg.Caption}
	} else {
		cloudReq.Type = "text"
		cloudReq.Text = &CloudSendText{Body: msg.Body}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)

	jsonBody, _ := json.Marshal(cloudReq)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		// Lỗi transport đi qua error return, SendResult.Error chỉ dành cho
		// trường hợp Cloud API trả lời và từ chối
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("cloud send failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &SendResult{Success: false, Error: fmt.Errorf("cloud api error: %s", string(body))}, nil
	}

	var cloudResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	json.Unmarshal(body, &cloudResp)

	messageID := ""
	if len(cloudResp.Messages) > 0 {
		messageID = cloudResp.Messages[0].ID
	}

	c.logger.Info("cloud message sent",
		zap.String("to", msg.RemoteAddress),
		zap.String("message_id", messageID),
	)

	return &SendResult{
		Success:          true,
		ChannelMessageID: messageID,
	}, nil
}

// SendPresence Cloud API không hỗ trợ presence update
func (c *CloudChannel) SendPresence(ctx context.Context, sessionID, remoteAddress, state string) error {
	return nil
}

// ===========================================================================
// Verify - Xác thực webhook signature
// ===========================================================================

// Verify kiểm tra X-Hub-Signature-256 header
func (c *CloudChannel) Verify(signature string, body []byte, secret string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}

	expectedSig := signature[7:]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	actualSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(actualSig))
}
