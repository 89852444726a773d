package handlers

import (
	"net/http"

	"supportdesk-gin/internal/dto"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/realtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ===========================================================================
// WebSocket Handler
// Dashboard mở một websocket connection để nhận realtime events
// (tin nhắn mới, chat update, session update) của tenant mình
// ===========================================================================

// WSHandler xử lý websocket endpoint
type WSHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewWSHandler tạo handler mới
func NewWSHandler(hub *realtime.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// Connect upgrade connection và gắn vào hub
// GET /api/v1/ws
func (h *WSHandler) Connect(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Authentication required"))
		return
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, &tenantID); err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
}

// RegisterRoutes đăng ký websocket route
func (h *WSHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/ws", auth, h.Connect)
}
