package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/config"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===========================================================================
// Stubs
// ===========================================================================

// stubResolver TenantResolver trả về tenant cố định theo routing ID
type stubResolver struct {
	tenants map[string]*models.Tenant
	err     error
}

func (r *stubResolver) resolve(key string) (*models.Tenant, error) {
	if r.err != nil {
		return nil, r.err
	}
	tenant, ok := r.tenants[key]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	return tenant, nil
}

func (r *stubResolver) ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	return r.resolve(apiKey)
}

func (r *stubResolver) ResolveBySession(ctx context.Context, sessionID string) (*models.Tenant, error) {
	return r.resolve(sessionID)
}

func (r *stubResolver) ResolveByCloudPhone(ctx context.Context, phoneID string) (*models.Tenant, error) {
	return r.resolve(phoneID)
}

// stubInbound InboundService ghi lại các messages đã nhận
type stubInbound struct {
	mu       sync.Mutex
	received []*channel.InboundMessage
}

func (s *stubInbound) ProcessMessage(ctx context.Context, tenant *models.Tenant, msg *channel.InboundMessage) (*services.ProcessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, msg)
	return &services.ProcessResult{
		ContactID: uuid.New(),
		ChatID:    uuid.New(),
		MessageID: uuid.New(),
	}, nil
}

func (s *stubInbound) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// stubSessionRepo SessionRepository tối thiểu cho registry
type stubSessionRepo struct {
	mu   sync.Mutex
	rows []*models.ChannelSession
}

func (r *stubSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ChannelSession, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.ChannelSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			return row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSessionRepo) FindAll(ctx context.Context) ([]models.ChannelSession, error) {
	return nil, nil
}

func (r *stubSessionRepo) Create(ctx context.Context, row *models.ChannelSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *stubSessionRepo) Update(ctx context.Context, row *models.ChannelSession) error { return nil }

func (r *stubSessionRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

// silentPublisher Publisher không làm gì
type silentPublisher struct{}

func (silentPublisher) PublishMessage(uuid.UUID, *realtime.MessageEvent) error        { return nil }
func (silentPublisher) PublishChatUpdate(uuid.UUID, *realtime.ChatEvent) error        { return nil }
func (silentPublisher) PublishSessionUpdate(*uuid.UUID, *realtime.SessionEvent) error { return nil }

// ===========================================================================
// Test environment
// ===========================================================================

type webhookTestEnv struct {
	router   *gin.Engine
	inbound  *stubInbound
	sessions *session.Registry
}

func newWebhookTestEnv(t *testing.T, gateway config.GatewayConfig, cloud config.CloudConfig, tenants map[string]*models.Tenant) *webhookTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	channels := channel.NewRegistry()
	channels.Register(channel.NewGatewayChannel("http://gateway.local", "", log))
	channels.Register(channel.NewCloudChannel("", log))

	registry := session.NewRegistry(&stubSessionRepo{}, silentPublisher{}, log)
	inbound := &stubInbound{}

	handler := NewWebhookHandler(
		channels,
		&stubResolver{tenants: tenants},
		inbound,
		registry,
		gateway,
		cloud,
		log,
	)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api"))

	return &webhookTestEnv{router: router, inbound: inbound, sessions: registry}
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func tenantFixture() *models.Tenant {
	tenant := &models.Tenant{Name: "Toko Uji", Status: models.TenantActive}
	tenant.ID = uuid.New()
	return tenant
}

// ===========================================================================
// Gateway webhook
// ===========================================================================

func TestGatewayWebhook_ValidSignature(t *testing.T) {
	secret := "gw-secret"
	env := newWebhookTestEnv(t,
		config.GatewayConfig{WebhookSecret: secret},
		config.CloudConfig{},
		map[string]*models.Tenant{"s1": tenantFixture()},
	)

	body := []byte(`{"event":"message","session_id":"s1","message":{"id":"gw-1","from":"628111","push_name":"Budi","body":"halo","timestamp":1705487400}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("X-Gateway-Signature", sign(body, secret))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.inbound.count())
}

func TestGatewayWebhook_InvalidSignature(t *testing.T) {
	env := newWebhookTestEnv(t,
		config.GatewayConfig{WebhookSecret: "gw-secret"},
		config.CloudConfig{},
		nil,
	)

	body := []byte(`{"event":"message","session_id":"s1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("X-Gateway-Signature", "deadbeef")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, env.inbound.count())
}

func TestGatewayWebhook_MissingSignature(t *testing.T) {
	env := newWebhookTestEnv(t,
		config.GatewayConfig{WebhookSecret: "gw-secret"},
		config.CloudConfig{},
		nil,
	)

	body := []byte(`{"event":"message","session_id":"s1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGatewayWebhook_UnknownTenantStill200(t *testing.T) {
	// Unknown tenant is dropped without error so the gateway stops retrying
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{}, nil)

	body := []byte(`{"event":"message","session_id":"ghost","message":{"id":"gw-1","from":"628111","body":"halo"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.inbound.count())
}

func TestGatewayWebhook_SessionEvent(t *testing.T) {
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{}, nil)

	_, err := env.sessions.Create(context.Background(), "s1", nil)
	require.NoError(t, err)

	body := []byte(`{"event":"session.status","session_id":"s1","status":{"state":"connected","address":"628123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader(body))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.sessions.IsConnected("s1"))
}

func TestGatewayWebhook_BadJSON(t *testing.T) {
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", bytes.NewReader([]byte(`{broken`)))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===========================================================================
// Cloud webhook
// ===========================================================================

func TestCloudVerify_EchoesChallenge(t *testing.T) {
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{VerifyToken: "verify-me"}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/webhooks/cloud?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=challenge-42", nil)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "challenge-42", w.Body.String())
}

func TestCloudVerify_WrongToken(t *testing.T) {
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{VerifyToken: "verify-me"}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/webhooks/cloud?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-42", nil)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCloudWebhook_ValidSignature(t *testing.T) {
	secret := "app-secret"
	env := newWebhookTestEnv(t,
		config.GatewayConfig{},
		config.CloudConfig{AppSecret: secret},
		map[string]*models.Tenant{"1029384756": tenantFixture()},
	)

	body := []byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"1029384756"},"messages":[{"id":"wamid.1","from":"628111","type":"text","text":{"body":"halo"}}]}}]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/cloud", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign(body, secret))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
	assert.Equal(t, 1, env.inbound.count())
}

func TestCloudWebhook_InvalidSignature(t *testing.T) {
	env := newWebhookTestEnv(t,
		config.GatewayConfig{},
		config.CloudConfig{AppSecret: "app-secret"},
		nil,
	)

	body := []byte(`{"object":"whatsapp_business_account"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/cloud", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCloudWebhook_StatusCallbackStill200(t *testing.T) {
	env := newWebhookTestEnv(t, config.GatewayConfig{}, config.CloudConfig{}, nil)

	body := []byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"1029384756"},"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/cloud", bytes.NewReader(body))
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
	assert.Equal(t, 0, env.inbound.count())
}
