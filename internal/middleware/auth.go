package middleware

import (
	"net/http"
	"strings"

	"supportdesk-gin/internal/auth"
	"supportdesk-gin/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ===========================================================================
// Auth Middleware
// Protect các routes dashboard với JWT authentication
// Token gắn với tenant, mọi handler phía sau chỉ thao tác trong tenant đó
// ===========================================================================

// Context keys cho auth data
const (
	ContextKeyTenantID = "tenant_id"
	ContextKeyClaims   = "claims"
)

// AuthMiddleware tạo middleware để verify JWT from cookie or header
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// 1. First try to get token from cookie (httpOnly)
		if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
			tokenString = cookie
		}

		// 2. Fallback to Authorization header (for API clients)
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
					tokenString = parts[1]
				}
			}
		}

		// 3. No token found
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, dto.Error("UNAUTHORIZED", "Authentication required"))
			c.Abort()
			return
		}

		// 4. Validate token
		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			if err == auth.ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, dto.Error("TOKEN_EXPIRED", "Token has expired"))
			} else {
				c.JSON(http.StatusUnauthorized, dto.Error("INVALID_TOKEN", "Invalid token"))
			}
			c.Abort()
			return
		}

		// 5. Set tenant info in context
		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// ===========================================================================
// Helper functions để lấy data từ context
// ===========================================================================

// GetTenantID lấy tenant ID từ context
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	id, exists := c.Get(ContextKeyTenantID)
	if !exists {
		return uuid.Nil, false
	}
	return id.(uuid.UUID), true
}

// GetClaims lấy toàn bộ claims từ context
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	return claims.(*auth.Claims), true
}
