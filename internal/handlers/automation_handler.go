package handlers

import (
	"net/http"

	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/escalation"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/scheduler"
	"supportdesk-gin/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ===========================================================================
// Automation Handler
// API cho automation engine (n8n), xác thực bằng X-API-Key
// Khách hàng được identify bằng remote_address trong phạm vi tenant
// ===========================================================================

// AutomationHandler xử lý các automation endpoints
type AutomationHandler struct {
	identity  services.IdentityResolver
	store     services.MessageStore
	chats     services.ChatService
	scheduler *scheduler.Scheduler
	detector  escalation.Detector
	logger    *zap.Logger
}

// NewAutomationHandler tạo handler mới
func NewAutomationHandler(
	identity services.IdentityResolver,
	store services.MessageStore,
	chats services.ChatService,
	sched *scheduler.Scheduler,
	detector escalation.Detector,
	logger *zap.Logger,
) *AutomationHandler {
	return &AutomationHandler{
		identity:  identity,
		store:     store,
		chats:     chats,
		scheduler: sched,
		detector:  detector,
		logger:    logger,
	}
}

// ===========================================================================
// Message logging
// ===========================================================================

// LogMessage ghi lại một tin nhắn đã được automation xử lý
// POST /api/automation/log-message
func (h *AutomationHandler) LogMessage(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.LogMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	msg, created, err := h.logOne(c, tenant, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(gin.H{
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
		"created":    created,
	}))
}

// LogMessageBulk ghi nhiều tin nhắn một lần
// Từng item độc lập: item lỗi không chặn các item còn lại
// POST /api/automation/log-message/bulk
func (h *AutomationHandler) LogMessageBulk(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.LogMessageBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	results := make([]dto.BulkItemResult, 0, len(req.Messages))
	for i := range req.Messages {
		item := dto.BulkItemResult{Index: i}

		_, created, err := h.logOne(c, tenant, &req.Messages[i])
		if err != nil {
			item.Error = &dto.APIError{Code: apperrors.ErrorCode(err), Message: err.Error()}
		} else {
			item.Success = true
			item.Created = created
		}
		results = append(results, item)
	}

	c.JSON(http.StatusOK, dto.Success(gin.H{"results": results}))
}

// logOne resolve chat và append một tin nhắn
func (h *AutomationHandler) logOne(c *gin.Context, tenant *models.Tenant, req *dto.LogMessageRequest) (*models.Message, bool, error) {
	ctx := c.Request.Context()

	_, chat, err := h.identity.ResolveChat(ctx, tenant.ID, req.RemoteAddress, req.SenderName, false, true)
	if err != nil {
		return nil, false, err
	}

	direction := models.DirectionIn
	senderType := models.SenderCustomer
	if req.Direction == string(models.DirectionOut) {
		direction = models.DirectionOut
		senderType = models.SenderAutomation
	}

	return h.store.Append(ctx, &services.AppendParams{
		TenantID:         tenant.ID,
		Chat:             chat,
		Direction:        direction,
		SenderType:       senderType,
		Body:             req.Body,
		MediaURL:         req.MediaURL,
		ChannelMessageID: req.ChannelMessageID,
		Metadata:         models.MessageMetadata{PushName: req.SenderName},
	})
}

// ===========================================================================
// Sending
// ===========================================================================

// SendMessage gửi tin text cho khách qua channel của tenant
// POST /api/automation/send-message
func (h *AutomationHandler) SendMessage(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.AutomationSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	h.send(c, tenant, &scheduler.SendRequest{
		Tenant:        tenant,
		RemoteAddress: req.RemoteAddress,
		SenderType:    models.SenderAutomation,
		Body:          req.Body,
	})
}

// SendImage gửi ảnh cho khách qua channel của tenant
// POST /api/automation/send-image
func (h *AutomationHandler) SendImage(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.AutomationSendImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	h.send(c, tenant, &scheduler.SendRequest{
		Tenant:        tenant,
		RemoteAddress: req.RemoteAddress,
		SenderType:    models.SenderAutomation,
		ImageURL:      req.ImageURL,
		Caption:       req.Caption,
	})
}

// send resolve chat rồi đẩy request qua scheduler
func (h *AutomationHandler) send(c *gin.Context, tenant *models.Tenant, req *scheduler.SendRequest) {
	ctx := c.Request.Context()

	_, chat, err := h.identity.ResolveChat(ctx, tenant.ID, req.RemoteAddress, "", false, true)
	if err != nil {
		h.respondError(c, err)
		return
	}
	req.Chat = chat

	msg, err := h.scheduler.Send(ctx, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(gin.H{
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
	}))
}

// ===========================================================================
// Escalation
// ===========================================================================

// CheckEscalation chạy heuristic trên một đoạn text, không side-effect
// n8n gọi trước khi trả lời tự động để quyết định có nên im lặng không
// GET /api/automation/check-escalation?text=...
func (h *AutomationHandler) CheckEscalation(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", "text is required"))
		return
	}

	result := h.detector.Detect(text, tenant.Settings.EscalationKeywords)
	c.JSON(http.StatusOK, dto.Success(gin.H{
		"should_escalate": result.ShouldEscalate,
		"matched_keyword": result.MatchedKeyword,
	}))
}

// Escalate chuyển chat của một khách cho agent
// Chat đã đóng trả về INVALID_STATE (409)
// POST /api/automation/escalate
func (h *AutomationHandler) Escalate(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.AutomationEscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, err := h.chats.EscalateByRemote(c.Request.Context(), tenant.ID, req.RemoteAddress, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// EscalationQueue danh sách chats đang chờ agent, chờ lâu nhất trước
// GET /api/automation/escalation-queue
func (h *AutomationHandler) EscalationQueue(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chats, total, err := h.chats.EscalationQueue(c.Request.Context(), tenant.ID, &page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessWithMeta(chats, dto.NewMeta(page.Page, page.Limit, total)))
}

// ===========================================================================
// Conversation access
// ===========================================================================

// Conversation lấy chat + timeline của một khách
// GET /api/automation/conversation?remote_address=...
func (h *AutomationHandler) Conversation(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	remoteAddress := c.Query("remote_address")
	if remoteAddress == "" {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", "remote_address is required"))
		return
	}

	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, messages, total, err := h.chats.TimelineByRemote(c.Request.Context(), tenant.ID, remoteAddress, &page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessWithMeta(gin.H{
		"chat":     chat,
		"messages": messages,
	}, dto.NewMeta(page.Page, page.Limit, total)))
}

// CloseChat đóng chat của một khách
// POST /api/automation/close-chat
func (h *AutomationHandler) CloseChat(c *gin.Context) {
	tenant, ok := middleware.GetTenant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Tenant not resolved"))
		return
	}

	var req dto.AutomationCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	chat, err := h.chats.CloseByRemote(c.Request.Context(), tenant.ID, req.RemoteAddress, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(chat))
}

// ===========================================================================
// Helpers
// ===========================================================================

// respondError map lỗi nghiệp vụ về HTTP response chuẩn
func (h *AutomationHandler) respondError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	status := apperrors.StatusCode(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("automation request failed",
			zap.String("request_id", requestID), zap.Error(err))
	}

	c.JSON(status, dto.Error(apperrors.ErrorCode(err), err.Error()))
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký automation routes
// apiKey middleware resolve tenant trước khi vào handler
func (h *AutomationHandler) RegisterRoutes(rg *gin.RouterGroup, apiKey gin.HandlerFunc) {
	automation := rg.Group("/automation", apiKey)
	{
		automation.POST("/log-message", h.LogMessage)
		automation.POST("/log-message/bulk", h.LogMessageBulk)

		automation.POST("/send-message", h.SendMessage)
		automation.POST("/send-image", h.SendImage)

		automation.GET("/check-escalation", h.CheckEscalation)
		automation.POST("/escalate", h.Escalate)
		automation.GET("/escalation-queue", h.EscalationQueue)

		automation.GET("/conversation", h.Conversation)
		automation.POST("/close-chat", h.CloseChat)
	}
}
