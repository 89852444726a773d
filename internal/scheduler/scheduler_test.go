package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/config"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// typedChannel gắn MockChannel vào một channel type cụ thể và ghi lại
// credentials được truyền vào Send
type typedChannel struct {
	*channel.MockChannel
	typ string

	mu    sync.Mutex
	creds []map[string]string
}

func newTypedChannel(typ string) *typedChannel {
	return &typedChannel{
		MockChannel: channel.NewMockChannel(zap.NewNop()),
		typ:         typ,
	}
}

func (c *typedChannel) Type() string { return c.typ }

func (c *typedChannel) Send(ctx context.Context, msg *channel.OutboundMessage, credentials map[string]string) (*channel.SendResult, error) {
	c.mu.Lock()
	c.creds = append(c.creds, credentials)
	c.mu.Unlock()
	return c.MockChannel.Send(ctx, msg, credentials)
}

func (c *typedChannel) lastCreds() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.creds) == 0 {
		return nil
	}
	return c.creds[len(c.creds)-1]
}

// stubStore MessageStore ghi lại các AppendParams
type stubStore struct {
	mu      sync.Mutex
	appends []*services.AppendParams
}

func (s *stubStore) Append(ctx context.Context, params *services.AppendParams) (*models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, params)

	msg := &models.Message{
		ChatID:           params.Chat.ID,
		Direction:        params.Direction,
		SenderType:       params.SenderType,
		Body:             params.Body,
		ContentType:      params.ContentType,
		MediaURL:         params.MediaURL,
		ChannelMessageID: params.ChannelMessageID,
		Metadata:         params.Metadata,
	}
	msg.ID = uuid.New()
	return msg, true, nil
}

func (s *stubStore) Timeline(ctx context.Context, chatID uuid.UUID, opts repositories.FindOptions) ([]models.Message, int64, error) {
	return nil, 0, nil
}

func (s *stubStore) last() *services.AppendParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.appends) == 0 {
		return nil
	}
	return s.appends[len(s.appends)-1]
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appends)
}

// fakeSessionRepo in-memory SessionRepository cho session registry
type fakeSessionRepo struct {
	mu   sync.Mutex
	rows []*models.ChannelSession
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ChannelSession, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.ChannelSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			return row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) FindAll(ctx context.Context) ([]models.ChannelSession, error) {
	return nil, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, row *models.ChannelSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, row *models.ChannelSession) error { return nil }

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

// nopPublisher Publisher bỏ qua mọi event
type nopPublisher struct{}

func (nopPublisher) PublishMessage(uuid.UUID, *realtime.MessageEvent) error       { return nil }
func (nopPublisher) PublishChatUpdate(uuid.UUID, *realtime.ChatEvent) error       { return nil }
func (nopPublisher) PublishSessionUpdate(*uuid.UUID, *realtime.SessionEvent) error { return nil }

// ===========================================================================
// Test environment
// ===========================================================================

type schedulerTestEnv struct {
	scheduler *Scheduler
	sessions  *session.Registry
	gateway   *typedChannel
	cloud     *typedChannel
	store     *stubStore
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		QueueSize:   10,
		TypingDelay: 0,
		SendTimeout: 500 * time.Millisecond,
		LockTTL:     5 * time.Second,
	}
}

func newSchedulerTestEnv(t *testing.T, cfg config.SchedulerConfig) *schedulerTestEnv {
	t.Helper()
	log := zap.NewNop()

	registry := session.NewRegistry(&fakeSessionRepo{}, nopPublisher{}, log)

	gateway := newTypedChannel(channel.TypeGateway)
	cloud := newTypedChannel(channel.TypeCloud)
	channels := channel.NewRegistry()
	channels.Register(gateway)
	channels.Register(cloud)

	store := &stubStore{}
	lock := NewSendLock(nil, cfg.LockTTL, log)

	sched := NewScheduler(cfg, config.CloudConfig{AccessToken: "cloud-token"}, registry, channels, store, lock, log)
	t.Cleanup(sched.Stop)

	return &schedulerTestEnv{
		scheduler: sched,
		sessions:  registry,
		gateway:   gateway,
		cloud:     cloud,
		store:     store,
	}
}

// connectSession đưa một session qua đủ state machine tới connected
func (e *schedulerTestEnv) connectSession(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.sessions.Create(ctx, sessionID, nil)
	require.NoError(t, err)
	_, err = e.sessions.Apply(ctx, &channel.SessionUpdate{SessionID: sessionID, Status: "connected"})
	require.NoError(t, err)
}

func gatewayTenant(sessionID string) *models.Tenant {
	tenant := &models.Tenant{
		Name:      "Toko Uji",
		Status:    models.TenantActive,
		SessionID: &sessionID,
	}
	tenant.ID = uuid.New()
	return tenant
}

func cloudTenant(phoneID string) *models.Tenant {
	tenant := &models.Tenant{
		Name:         "Toko Cloud",
		Status:       models.TenantActive,
		CloudPhoneID: &phoneID,
	}
	tenant.ID = uuid.New()
	return tenant
}

func openChat(tenantID uuid.UUID) *models.Chat {
	chat := &models.Chat{
		TenantID:  tenantID,
		ContactID: uuid.New(),
		Status:    models.ChatOpen,
	}
	chat.ID = uuid.New()
	return chat
}

// ===========================================================================
// Tests
// ===========================================================================

func TestSend_GatewayRoute(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")

	msg, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo kak",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.DirectionOut, msg.Direction)
	assert.NotNil(t, msg.ChannelMessageID)

	sent := env.gateway.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "s1", sent[0].SessionID)
	assert.Equal(t, "628111", sent[0].RemoteAddress)
	assert.Equal(t, "halo kak", sent[0].Body)

	// Presence composing/paused brackets the send
	assert.Equal(t, []string{"composing", "paused"}, env.gateway.GetPresenceStates())
}

func TestSend_SequentialOrderPerSession(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")
	chat := openChat(tenant.ID)
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := env.scheduler.Send(ctx, &SendRequest{
			Tenant:        tenant,
			Chat:          chat,
			RemoteAddress: "628111",
			SenderType:    models.SenderAutomation,
			Body:          body,
		})
		require.NoError(t, err)
	}

	sent := env.gateway.GetSentMessages()
	require.Len(t, sent, 3)
	assert.Equal(t, "first", sent[0].Body)
	assert.Equal(t, "second", sent[1].Body)
	assert.Equal(t, "third", sent[2].Body)
	assert.Equal(t, 3, env.store.count())
}

func TestSend_CloudRoute(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	tenant := cloudTenant("1029384756")

	// Cloud API is stateless, no session required
	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAutomation,
		Body:          "halo",
	})
	require.NoError(t, err)

	creds := env.cloud.lastCreds()
	require.NotNil(t, creds)
	assert.Equal(t, "1029384756", creds["phone_number_id"])
	assert.Equal(t, "cloud-token", creds["access_token"])
	assert.Empty(t, env.gateway.GetSentMessages())
}

func TestSend_SessionNotConnected(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	tenant := gatewayTenant("s1")

	// Session exists but never connected
	_, err := env.sessions.Create(context.Background(), "s1", nil)
	require.NoError(t, err)

	_, err = env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSessionUnavailable)
	assert.Empty(t, env.gateway.GetSentMessages())
}

func TestSend_NoChannelConfigured(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	tenant := &models.Tenant{Name: "Toko Kosong", Status: models.TenantActive}
	tenant.ID = uuid.New()

	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSessionUnavailable)
}

func TestSend_ClosedChat(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")
	chat := openChat(tenant.ID)
	chat.Close("done")

	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          chat,
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestSend_InvalidRequest(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	tenant := gatewayTenant("s1")
	ctx := context.Background()

	_, err := env.scheduler.Send(ctx, &SendRequest{Chat: openChat(uuid.New()), RemoteAddress: "628111"})
	assert.ErrorIs(t, err, apperrors.ErrPayloadInvalid)

	_, err = env.scheduler.Send(ctx, &SendRequest{Tenant: tenant, RemoteAddress: "628111"})
	assert.ErrorIs(t, err, apperrors.ErrPayloadInvalid)

	_, err = env.scheduler.Send(ctx, &SendRequest{Tenant: tenant, Chat: openChat(tenant.ID)})
	assert.ErrorIs(t, err, apperrors.ErrPayloadInvalid)
}

func TestSend_ChannelTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.SendTimeout = 50 * time.Millisecond
	env := newSchedulerTestEnv(t, cfg)
	env.connectSession(t, "s1")
	env.gateway.SendDelay = 300 * time.Millisecond
	tenant := gatewayTenant("s1")

	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendTimeout)
	assert.Equal(t, 0, env.store.count(), "timed out send must not be recorded")
}

func TestSend_ChannelError(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	env.gateway.SendErr = errors.New("gateway 500")
	tenant := gatewayTenant("s1")

	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendRejected)
	assert.Equal(t, 0, env.store.count())
}

func TestSend_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.SendTimeout = 2 * time.Second
	env := newSchedulerTestEnv(t, cfg)
	env.connectSession(t, "s1")
	env.gateway.SendDelay = 300 * time.Millisecond
	tenant := gatewayTenant("s1")
	ctx := context.Background()

	var wg sync.WaitGroup
	// First job occupies the worker, second fills the queue
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.scheduler.Send(ctx, &SendRequest{
				Tenant:        tenant,
				Chat:          openChat(tenant.ID),
				RemoteAddress: "628111",
				SenderType:    models.SenderAutomation,
				Body:          "queued",
			})
		}()
		time.Sleep(50 * time.Millisecond)
	}

	_, err := env.scheduler.Send(ctx, &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAutomation,
		Body:          "rejected",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendRejected)

	wg.Wait()
}

func TestSend_ImageMessage(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")

	msg, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		ImageURL:      "https://cdn.example.com/product.jpg",
		Caption:       "ini fotonya kak",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ContentImage, msg.ContentType)
	assert.Equal(t, "ini fotonya kak", msg.Body)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, "https://cdn.example.com/product.jpg", *msg.MediaURL)

	recorded := env.store.last()
	require.NotNil(t, recorded)
	assert.Equal(t, "ini fotonya kak", recorded.Metadata.Caption)
	assert.NotNil(t, recorded.Metadata.DeliveredAt)
}

func TestSend_GatewayTransportTimeout(t *testing.T) {
	// Real gateway adapter against a server that never answers in time:
	// the transport deadline must surface as a send timeout, not a rejection
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") {
			time.Sleep(300 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log := zap.NewNop()
	registry := session.NewRegistry(&fakeSessionRepo{}, nopPublisher{}, log)
	channels := channel.NewRegistry()
	channels.Register(channel.NewGatewayChannel(srv.URL, "", log))

	cfg := testConfig()
	cfg.SendTimeout = 100 * time.Millisecond
	store := &stubStore{}
	sched := NewScheduler(cfg, config.CloudConfig{}, registry, channels, store, NewSendLock(nil, cfg.LockTTL, log), log)
	t.Cleanup(sched.Stop)

	ctx := context.Background()
	_, err := registry.Create(ctx, "s1", nil)
	require.NoError(t, err)
	_, err = registry.Apply(ctx, &channel.SessionUpdate{SessionID: "s1", Status: "connected"})
	require.NoError(t, err)

	tenant := gatewayTenant("s1")
	_, err = sched.Send(ctx, &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendTimeout)
	assert.Equal(t, 0, store.count())
}

func TestSend_CallerDeadlineWhileQueued(t *testing.T) {
	cfg := testConfig()
	cfg.SendTimeout = 2 * time.Second
	env := newSchedulerTestEnv(t, cfg)
	env.connectSession(t, "s1")
	env.gateway.SendDelay = 300 * time.Millisecond
	tenant := gatewayTenant("s1")

	// Occupy the worker so the second job waits in the queue
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.scheduler.Send(context.Background(), &SendRequest{
			Tenant:        tenant,
			Chat:          openChat(tenant.ID),
			RemoteAddress: "628111",
			SenderType:    models.SenderAutomation,
			Body:          "busy",
		})
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.scheduler.Send(ctx, &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAutomation,
		Body:          "expired",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendTimeout)
	wg.Wait()
}

func TestReleaseQueue_RemovesSessionWorker(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")
	ctx := context.Background()

	_, err := env.scheduler.Send(ctx, &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	require.NoError(t, err)

	env.scheduler.mu.Lock()
	_, ok := env.scheduler.queues["s1"]
	env.scheduler.mu.Unlock()
	require.True(t, ok)

	env.scheduler.ReleaseQueue("s1")

	env.scheduler.mu.Lock()
	_, ok = env.scheduler.queues["s1"]
	env.scheduler.mu.Unlock()
	assert.False(t, ok, "released session must not keep a queue")

	// A later send simply builds a fresh queue and worker
	_, err = env.scheduler.Send(ctx, &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo lagi",
	})
	require.NoError(t, err)
}

func TestSend_AfterStop(t *testing.T) {
	env := newSchedulerTestEnv(t, testConfig())
	env.connectSession(t, "s1")
	tenant := gatewayTenant("s1")

	env.scheduler.Stop()

	_, err := env.scheduler.Send(context.Background(), &SendRequest{
		Tenant:        tenant,
		Chat:          openChat(tenant.ID),
		RemoteAddress: "628111",
		SenderType:    models.SenderAgent,
		Body:          "halo",
	})
	assert.ErrorIs(t, err, apperrors.ErrSendRejected)
}
