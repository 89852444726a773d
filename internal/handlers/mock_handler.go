package handlers

import (
	"net/http"
	"time"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ===========================================================================
// MockHandler simulate các sự kiện từ channel trong development
// Cho phép test đầy đủ inbound pipeline và session lifecycle mà không
// cần gateway hay cloud credentials thật
// ===========================================================================

// MockHandler chứa dependencies cần thiết
type MockHandler struct {
	registry *channel.Registry
	resolver services.TenantResolver
	inbound  services.InboundService
	sessions *session.Registry
	logger   *zap.Logger
}

// NewMockHandler tạo MockHandler mới
func NewMockHandler(
	registry *channel.Registry,
	resolver services.TenantResolver,
	inbound services.InboundService,
	sessions *session.Registry,
	logger *zap.Logger,
) *MockHandler {
	return &MockHandler{
		registry: registry,
		resolver: resolver,
		inbound:  inbound,
		sessions: sessions,
		logger:   logger,
	}
}

// ===========================================================================
// Request DTOs
// ===========================================================================

// MockInboundRequest simulate khách hàng gửi tin nhắn
type MockInboundRequest struct {
	// SessionID session nhận tin (bắt buộc)
	SessionID string `json:"session_id" binding:"required"`

	// RemoteAddress địa chỉ người gửi (bắt buộc)
	RemoteAddress string `json:"remote_address" binding:"required"`

	// SenderName tên hiển thị (tùy chọn)
	SenderName string `json:"sender_name"`

	// Message nội dung tin nhắn
	Message string `json:"message" binding:"required"`

	// MessageID ID tin nhắn (tùy chọn, auto generate nếu không có)
	MessageID string `json:"message_id"`
}

// MockSessionRequest simulate một sự kiện vòng đời session
type MockSessionRequest struct {
	// SessionID session handle (bắt buộc)
	SessionID string `json:"session_id" binding:"required"`

	// Status trạng thái mới (bắt buộc)
	Status string `json:"status" binding:"required,oneof=connecting awaiting_link connected disconnected"`

	// QRData chuỗi QR thô (cho awaiting_link)
	QRData string `json:"qr_data"`

	// RemoteAddress số đã liên kết (cho connected)
	RemoteAddress string `json:"remote_address"`
}

// ===========================================================================
// Handlers
// ===========================================================================

// SimulateInbound simulate khách hàng gửi tin nhắn
// POST /api/v1/mock/inbound
func (h *MockHandler) SimulateInbound(c *gin.Context) {
	requestID := middleware.GetRequestID(c)
	ctx := c.Request.Context()

	var req MockInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	ch, err := h.registry.Get(channel.TypeMock)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.Error("CHANNEL_NOT_FOUND", "Mock channel chưa được đăng ký"))
		return
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = "mock-" + uuid.NewString()
	}

	payload := map[string]interface{}{
		"session_id":     req.SessionID,
		"message_id":     messageID,
		"remote_address": req.RemoteAddress,
		"sender_name":    req.SenderName,
		"message":        req.Message,
		"timestamp":      float64(time.Now().Unix()),
	}

	event, err := ch.Normalize(ctx, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("PAYLOAD_INVALID", err.Error()))
		return
	}
	if event.Kind != channel.KindMessage {
		c.JSON(http.StatusBadRequest, dto.Error("PAYLOAD_INVALID", "payload không phải tin nhắn"))
		return
	}

	tenant, err := h.resolver.ResolveBySession(ctx, req.SessionID)
	if err != nil {
		c.JSON(apperrors.StatusCode(err), dto.Error(apperrors.ErrorCode(err), err.Error()))
		return
	}

	result, err := h.inbound.ProcessMessage(ctx, tenant, event.Message)
	if err != nil {
		h.logger.Error("mock inbound failed",
			zap.String("request_id", requestID), zap.Error(err))
		c.JSON(apperrors.StatusCode(err), dto.Error(apperrors.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Success(result))
}

// SimulateSession simulate một sự kiện vòng đời session
// POST /api/v1/mock/session
func (h *MockHandler) SimulateSession(c *gin.Context) {
	var req MockSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	state, err := h.sessions.Apply(c.Request.Context(), &channel.SessionUpdate{
		SessionID:     req.SessionID,
		Status:        req.Status,
		QRData:        req.QRData,
		RemoteAddress: req.RemoteAddress,
	})
	if err != nil {
		c.JSON(apperrors.StatusCode(err), dto.Error(apperrors.ErrorCode(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.Success(state))
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký mock routes (chỉ bật trong development)
func (h *MockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	mock := rg.Group("/mock")
	{
		mock.POST("/inbound", h.SimulateInbound)
		mock.POST("/session", h.SimulateSession)
	}
}
