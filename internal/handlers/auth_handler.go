package handlers

import (
	"errors"
	"net/http"
	"time"

	"supportdesk-gin/internal/auth"
	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ===========================================================================
// Auth Handler
// Đổi API key của tenant lấy JWT cho dashboard
// Agent console giữ JWT ngắn hạn thay vì mang API key trên mọi request
// ===========================================================================

// AuthHandler xử lý các endpoint auth
type AuthHandler struct {
	resolver   services.TenantResolver
	jwtService *auth.JWTService
	logger     *zap.Logger
}

// NewAuthHandler tạo auth handler mới
func NewAuthHandler(
	resolver services.TenantResolver,
	jwtService *auth.JWTService,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		resolver:   resolver,
		jwtService: jwtService,
		logger:     logger,
	}
}

// ===========================================================================
// Request/Response DTOs
// ===========================================================================

// TokenRequest body cho đổi API key lấy token
type TokenRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	AgentName string `json:"agent_name" binding:"max=255"`
}

// TokenResponse response chứa access token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TenantID    string `json:"tenant_id"`
	TenantName  string `json:"tenant_name"`
}

// ===========================================================================
// Handlers
// ===========================================================================

// Token đổi API key lấy JWT
// POST /api/v1/auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Error("INVALID_REQUEST", err.Error()))
		return
	}

	tenant, err := h.resolver.ResolveByAPIKey(c.Request.Context(), req.APIKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrTenantSuspended) {
			c.JSON(http.StatusForbidden, dto.Error("TENANT_SUSPENDED", "Tenant is suspended"))
			return
		}
		// Key sai và key không tồn tại trả về cùng một lỗi
		c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Invalid API key"))
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(tenant.ID, req.AgentName)
	if err != nil {
		h.logger.Error("token generation failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, dto.Error("INTERNAL_ERROR", "Cannot generate token"))
		return
	}

	// Set httpOnly cookie cho web dashboard
	c.SetCookie("access_token", token, int(time.Until(expiresAt).Seconds()), "/", "", false, true)

	c.JSON(http.StatusOK, dto.Success(TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
		TenantID:    tenant.ID.String(),
		TenantName:  tenant.Name,
	}))
}

// Logout xóa cookie
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, dto.Success(gin.H{"logged_out": true}))
}

// ===========================================================================
// Route Registration
// ===========================================================================

// RegisterRoutes đăng ký auth routes
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/token", h.Token)
		authGroup.POST("/logout", h.Logout)
	}
}
