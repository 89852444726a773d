package middleware

import (
	"errors"
	"net/http"

	"supportdesk-gin/internal/dto"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/services"

	"github.com/gin-gonic/gin"
)

// ===========================================================================
// API Key Middleware
// Xác thực automation engine (n8n) bằng API key của tenant
// Key nhận từ header X-API-Key hoặc query param api_key (cho các node
// không chỉnh được header)
// ===========================================================================

// ContextKeyTenant key chứa tenant đã resolve trong gin context
const ContextKeyTenant = "tenant"

// APIKeyMiddleware tạo middleware resolve tenant từ API key
// Tenant suspended bị từ chối ở đây, handler phía sau không cần check lại
func APIKeyMiddleware(resolver services.TenantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "API key required"))
			c.Abort()
			return
		}

		tenant, err := resolver.ResolveByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrTenantNotFound):
				// Không phân biệt key sai với key không tồn tại
				c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Invalid API key"))
			case errors.Is(err, apperrors.ErrTenantSuspended):
				c.JSON(http.StatusForbidden, dto.Error("TENANT_SUSPENDED", "Tenant is suspended"))
			default:
				c.JSON(http.StatusInternalServerError, dto.Error("INTERNAL_ERROR", "Failed to resolve tenant"))
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyTenant, tenant)
		c.Set(ContextKeyTenantID, tenant.ID)
		c.Next()
	}
}

// GetTenant lấy tenant đã resolve từ context
func GetTenant(c *gin.Context) (*models.Tenant, bool) {
	value, exists := c.Get(ContextKeyTenant)
	if !exists {
		return nil, false
	}
	return value.(*models.Tenant), true
}
