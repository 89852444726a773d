package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/config"
	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ===========================================================================
// Webhook Handler
// Nhận webhooks từ gateway và cloud API
// Channel retry khi nhận non-2xx, nên payload đã authenticate luôn trả
// về 200 kể cả khi xử lý lỗi; chỉ signature sai mới trả 401/403
// ===========================================================================

// WebhookHandler xử lý webhook endpoints
type WebhookHandler struct {
	channels *channel.Registry
	resolver services.TenantResolver
	inbound  services.InboundService
	sessions *session.Registry
	gateway  config.GatewayConfig
	cloud    config.CloudConfig
	logger   *zap.Logger
}

// NewWebhookHandler tạo handler mới
func NewWebhookHandler(
	channels *channel.Registry,
	resolver services.TenantResolver,
	inbound services.InboundService,
	sessions *session.Registry,
	gateway config.GatewayConfig,
	cloud config.CloudConfig,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		channels: channels,
		resolver: resolver,
		inbound:  inbound,
		sessions: sessions,
		gateway:  gateway,
		cloud:    cloud,
		logger:   logger,
	}
}

// ===========================================================================
// Gateway Webhook
// ===========================================================================

// GatewayWebhook nhận tin nhắn và session events từ gateway
// POST /webhooks/gateway
func (h *WebhookHandler) GatewayWebhook(c *gin.Context) {
	body, payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	adapter, err := h.channels.Get(channel.TypeGateway)
	if err != nil {
		h.logger.Error("gateway channel not registered", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	// Signature bắt buộc khi đã cấu hình secret
	if h.gateway.WebhookSecret != "" {
		signature := c.GetHeader("X-Gateway-Signature")
		if !adapter.Verify(signature, body, h.gateway.WebhookSecret) {
			c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Invalid signature"))
			return
		}
	}

	h.processEvent(c, adapter, payload, func(sessionID string) (*models.Tenant, error) {
		return h.resolver.ResolveBySession(c.Request.Context(), sessionID)
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ===========================================================================
// Cloud Webhook
// ===========================================================================

// CloudVerify xử lý GET request để verify webhook subscription
// GET /webhooks/cloud
func (h *WebhookHandler) CloudVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.cloud.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}

	c.JSON(http.StatusForbidden, dto.Error("FORBIDDEN", "Invalid verify token"))
}

// CloudWebhook nhận tin nhắn từ cloud API
// POST /webhooks/cloud
func (h *WebhookHandler) CloudWebhook(c *gin.Context) {
	body, payload, ok := h.readPayload(c)
	if !ok {
		return
	}

	adapter, err := h.channels.Get(channel.TypeCloud)
	if err != nil {
		h.logger.Error("cloud channel not registered", zap.Error(err))
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	if h.cloud.AppSecret != "" {
		signature := c.GetHeader("X-Hub-Signature-256")
		if !adapter.Verify(signature, body, h.cloud.AppSecret) {
			c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Invalid signature"))
			return
		}
	}

	h.processEvent(c, adapter, payload, func(phoneID string) (*models.Tenant, error) {
		return h.resolver.ResolveByCloudPhone(c.Request.Context(), phoneID)
	})

	// Cloud API yêu cầu body "EVENT_RECEIVED"
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// ===========================================================================
// Event processing
// ===========================================================================

// processEvent normalize payload và route theo event kind
// resolve map routing identity (session ID / phone ID) về tenant, chỉ
// được gọi khi event thực sự là tin nhắn
func (h *WebhookHandler) processEvent(c *gin.Context, adapter channel.Channel, payload map[string]interface{}, resolve func(routingID string) (*models.Tenant, error)) {
	requestID := middleware.GetRequestID(c)
	ctx := c.Request.Context()

	event, err := adapter.Normalize(ctx, payload)
	if err != nil {
		h.logger.Warn("webhook normalize failed",
			zap.String("request_id", requestID),
			zap.String("channel", adapter.Type()),
			zap.Error(err),
		)
		return
	}

	switch event.Kind {
	case channel.KindIgnorable:
		// Receipt / typing / status update: hợp lệ nhưng không cần xử lý

	case channel.KindConnection:
		if _, err := h.sessions.Apply(ctx, event.Session); err != nil {
			h.logger.Warn("session update rejected",
				zap.String("request_id", requestID),
				zap.String("session_id", event.Session.SessionID),
				zap.Error(err),
			)
		}

	case channel.KindMessage:
		tenant, err := resolve(event.SessionID)
		if err != nil {
			// Tenant lạ hoặc suspended: drop, không cho channel retry
			log := h.logger.Warn
			if errors.Is(err, apperrors.ErrTenantSuspended) {
				log = h.logger.Info
			}
			log("inbound message dropped",
				zap.String("request_id", requestID),
				zap.String("routing_id", event.SessionID),
				zap.Error(err),
			)
			return
		}

		result, err := h.inbound.ProcessMessage(ctx, tenant, event.Message)
		if err != nil {
			h.logger.Error("process inbound failed",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			return
		}

		h.logger.Info("webhook message processed",
			zap.String("request_id", requestID),
			zap.String("message_id", result.MessageID.String()),
			zap.Bool("duplicate", result.Duplicate),
			zap.Bool("escalated", result.Escalated),
		)
	}
}

// readPayload đọc và parse JSON body, giữ lại raw bytes cho signature check
func (h *WebhookHandler) readPayload(c *gin.Context) ([]byte, map[string]interface{}, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("BAD_REQUEST", "Cannot read body"))
		return nil, nil, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("BAD_REQUEST", "Invalid JSON"))
		return nil, nil, false
	}

	return body, payload, true
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/gateway", h.GatewayWebhook)

		webhooks.GET("/cloud", h.CloudVerify)
		webhooks.POST("/cloud", h.CloudWebhook)
	}
}
