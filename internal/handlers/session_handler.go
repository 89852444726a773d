package handlers

import (
	"errors"
	"net/http"

	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Session Handler
// Quản lý gateway sessions: tạo session mới, xem trạng thái + QR code,
// logout. Dashboard poll hoặc nghe realtime event để lấy QR khi session
// ở trạng thái awaiting_link
// ===========================================================================

// SessionHandler xử lý các session endpoints
type SessionHandler struct {
	sessions *session.Registry
	logger   *zap.Logger
}

// NewSessionHandler tạo handler mới
func NewSessionHandler(sessions *session.Registry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// Create đăng ký session gateway mới, trạng thái ban đầu connecting
// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	state, err := h.sessions.Create(c.Request.Context(), req.SessionID, req.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, dto.Error("DUPLICATE_ENTRY", "Session đã tồn tại"))
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Success(state))
}

// List trả về trạng thái runtime của tất cả sessions
// GET /api/v1/sessions
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.Success(h.sessions.List()))
}

// Get trả về trạng thái của một session (kèm QR nếu awaiting_link)
// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	state, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.Error("NOT_FOUND", "Session không tồn tại"))
		return
	}

	c.JSON(http.StatusOK, dto.Success(state))
}

// Delete logout và xóa session
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(gin.H{"deleted": true}))
}

// respondError map lỗi nghiệp vụ về HTTP response chuẩn
func (h *SessionHandler) respondError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	status := apperrors.StatusCode(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("session request failed",
			zap.String("request_id", requestID), zap.Error(err))
	}

	c.JSON(status, dto.Error(apperrors.ErrorCode(err), err.Error()))
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký session routes
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	sessions := rg.Group("/sessions", auth)
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
	}
}
