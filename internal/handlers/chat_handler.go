package handlers

import (
	"net/http"

	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/repositories"
	"supportdesk-gin/internal/scheduler"
	"supportdesk-gin/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ===========================================================================
// Chat Handler
// API cho dashboard (agent console), xác thực bằng JWT
// Mọi thao tác đều scoped theo tenant trong token
// ===========================================================================

// ChatHandler xử lý các chat endpoints
type ChatHandler struct {
	chats      services.ChatService
	scheduler  *scheduler.Scheduler
	tenantRepo repositories.TenantRepository
	logger     *zap.Logger
}

// NewChatHandler tạo handler mới
func NewChatHandler(
	chats services.ChatService,
	sched *scheduler.Scheduler,
	tenantRepo repositories.TenantRepository,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		chats:      chats,
		scheduler:  sched,
		tenantRepo: tenantRepo,
		logger:     logger,
	}
}

// ===========================================================================
// Handlers
// ===========================================================================

// List lấy danh sách chats, hoạt động mới nhất trước
// GET /api/v1/chats?status=open&q=budi&page=1&limit=20
func (h *ChatHandler) List(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Authentication required"))
		return
	}

	var req dto.ListChatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chats, total, err := h.chats.List(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessWithMeta(chats, dto.NewMeta(req.Page, req.Limit, total)))
}

// Get lấy chi tiết một chat
// GET /api/v1/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}

	chat, err := h.chats.Get(c.Request.Context(), tenantID, chatID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// Timeline lấy messages của chat theo thứ tự insert
// GET /api/v1/chats/:id/messages?page=1&limit=50
func (h *ChatHandler) Timeline(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}

	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	messages, total, err := h.chats.Timeline(c.Request.Context(), tenantID, chatID, &page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessWithMeta(messages, dto.NewMeta(page.Page, page.Limit, total)))
}

// Send agent gửi tin nhắn từ dashboard
// POST /api/v1/chats/:id/messages
func (h *ChatHandler) Send(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req dto.AgentSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, err := h.chats.Get(ctx, tenantID, chatID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tenant, err := h.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg, err := h.scheduler.Send(ctx, &scheduler.SendRequest{
		Tenant:        tenant,
		Chat:          chat,
		RemoteAddress: chat.Contact.RemoteAddress,
		SenderType:    models.SenderAgent,
		Body:          req.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(msg))
}

// MarkRead đánh dấu chat đã đọc hết
// POST /api/v1/chats/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}

	chat, err := h.chats.MarkRead(c.Request.Context(), tenantID, chatID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// Escalate chuyển chat cho agent xử lý
// POST /api/v1/chats/:id/escalate
func (h *ChatHandler) Escalate(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}

	var req dto.EscalateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, err := h.chats.Escalate(c.Request.Context(), tenantID, chatID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// Close đóng chat
// POST /api/v1/chats/:id/close
func (h *ChatHandler) Close(c *gin.Context) {
	tenantID, chatID, ok := h.scope(c)
	if !ok {
		return
	}

	var req dto.CloseChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, err := h.chats.Close(c.Request.Context(), tenantID, chatID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// ===========================================================================
// Helpers
// ===========================================================================

// scope lấy tenant ID từ token và chat ID từ path
func (h *ChatHandler) scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Authentication required"))
		return uuid.Nil, uuid.Nil, false
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", "chat id không hợp lệ"))
		return uuid.Nil, uuid.Nil, false
	}

	return tenantID, chatID, true
}

// respondError map lỗi nghiệp vụ về HTTP response chuẩn
func (h *ChatHandler) respondError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	status := apperrors.StatusCode(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed",
			zap.String("request_id", requestID), zap.Error(err))
	}

	c.JSON(status, dto.Error(apperrors.ErrorCode(err), err.Error()))
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký chat routes cho dashboard
// auth middleware verify JWT trước khi vào handler
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	chats := rg.Group("/chats", auth)
	{
		chats.GET("", h.List)
		chats.GET("/:id", h.Get)
		chats.GET("/:id/messages", h.Timeline)
		chats.POST("/:id/messages", h.Send)
		chats.POST("/:id/read", h.MarkRead)
		chats.POST("/:id/escalate", h.Escalate)
		chats.POST("/:id/close", h.Close)
	}
}
