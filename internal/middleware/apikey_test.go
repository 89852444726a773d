package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyResolver TenantResolver chỉ biết một API key
type keyResolver struct {
	apiKey string
	tenant *models.Tenant
	err    error
}

func (r *keyResolver) ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	if r.err != nil {
		return nil, r.err
	}
	if apiKey != r.apiKey {
		return nil, apperrors.ErrTenantNotFound
	}
	return r.tenant, nil
}

func (r *keyResolver) ResolveBySession(ctx context.Context, sessionID string) (*models.Tenant, error) {
	return nil, apperrors.ErrTenantNotFound
}

func (r *keyResolver) ResolveByCloudPhone(ctx context.Context, phoneID string) (*models.Tenant, error) {
	return nil, apperrors.ErrTenantNotFound
}

func newAPIKeyRouter(resolver *keyResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", APIKeyMiddleware(resolver), func(c *gin.Context) {
		tenant, ok := GetTenant(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenant.ID})
	})
	return router
}

func activeResolver() *keyResolver {
	tenant := &models.Tenant{Name: "Toko Uji", Status: models.TenantActive}
	tenant.ID = uuid.New()
	return &keyResolver{apiKey: "sk-valid", tenant: tenant}
}

func TestAPIKey_HeaderAccepted(t *testing.T) {
	router := newAPIKeyRouter(activeResolver())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "sk-valid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKey_QueryParamAccepted(t *testing.T) {
	router := newAPIKeyRouter(activeResolver())

	// Some automation nodes cannot set headers
	req := httptest.NewRequest(http.MethodGet, "/protected?api_key=sk-valid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKey_Missing(t *testing.T) {
	router := newAPIKeyRouter(activeResolver())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API key required")
}

func TestAPIKey_Invalid(t *testing.T) {
	router := newAPIKeyRouter(activeResolver())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "sk-wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key and unknown key are indistinguishable
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestAPIKey_SuspendedTenant(t *testing.T) {
	router := newAPIKeyRouter(&keyResolver{err: apperrors.ErrTenantSuspended})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "sk-suspended")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "TENANT_SUSPENDED")
}
