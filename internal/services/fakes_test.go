package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ===========================================================================
// In-memory fakes cho repositories
// Emulate hành vi của gorm + postgres: ErrRecordNotFound khi không có,
// ErrDuplicatedKey khi vi phạm unique constraint
// ===========================================================================

func stamp(base *models.BaseModel) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	now := time.Now()
	base.CreatedAt = now
	base.UpdatedAt = now
}

// --- Tenant ---

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants []*models.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo { return &fakeTenantRepo{} }

func (r *fakeTenantRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) FindByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.APIKey == apiKey {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.SessionID != nil && *t.SessionID == sessionID {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) FindByCloudPhoneID(ctx context.Context, phoneID string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.CloudPhoneID != nil && *t.CloudPhoneID == phoneID {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) Create(ctx context.Context, tenant *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.APIKey == tenant.APIKey {
			return gorm.ErrDuplicatedKey
		}
	}
	stamp(&tenant.BaseModel)
	r.tenants = append(r.tenants, tenant)
	return nil
}

func (r *fakeTenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()
	return nil
}

// --- Contact ---

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts []*models.Contact

	// createDelay giữ Create lâu hơn để test race giữa hai goroutines
	createDelay time.Duration
}

func newFakeContactRepo() *fakeContactRepo { return &fakeContactRepo{} }

func (r *fakeContactRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeContactRepo) FindByRemoteAddress(ctx context.Context, tenantID uuid.UUID, remoteAddress string) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.TenantID == tenantID && c.RemoteAddress == remoteAddress {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeContactRepo) Create(ctx context.Context, contact *models.Contact) error {
	if r.createDelay > 0 {
		time.Sleep(r.createDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.TenantID == contact.TenantID && c.RemoteAddress == contact.RemoteAddress {
			return gorm.ErrDuplicatedKey
		}
	}
	stamp(&contact.BaseModel)
	r.contacts = append(r.contacts, contact)
	return nil
}

func (r *fakeContactRepo) Update(ctx context.Context, contact *models.Contact) error {
	contact.UpdatedAt = time.Now()
	return nil
}

func (r *fakeContactRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contacts)
}

// --- Chat ---

// fakeChatRepo trả về copy từ các Find giống gorm: mỗi query một struct
// riêng, caller không chia sẻ con trỏ với row đã lưu
type fakeChatRepo struct {
	mu    sync.Mutex
	chats []*models.Chat
}

func newFakeChatRepo() *fakeChatRepo { return &fakeChatRepo{} }

func cloneChat(c *models.Chat) *models.Chat {
	copied := *c
	return &copied
}

func (r *fakeChatRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.ID == id {
			return cloneChat(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChatRepo) FindByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.ID == id && c.TenantID == tenantID {
			return cloneChat(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChatRepo) FindActiveByContact(ctx context.Context, contactID uuid.UUID) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.ContactID == contactID && c.Status != models.ChatClosed {
			return cloneChat(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChatRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID, opts repositories.FindOptions) ([]models.Chat, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Chat
	for _, c := range r.chats {
		if c.TenantID != tenantID {
			continue
		}
		if status, ok := opts.Filters["status"]; ok && string(c.Status) != status.(string) {
			continue
		}
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (r *fakeChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&chat.BaseModel)
	// Lưu một bản copy: struct của caller không phải row trong "database"
	r.chats = append(r.chats, cloneChat(chat))
	return nil
}

func (r *fakeChatRepo) Update(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat.UpdatedAt = time.Now()
	for _, c := range r.chats {
		if c.ID == chat.ID {
			if c != chat {
				*c = *chat
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeChatRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats)
}

// applyCache mô phỏng UPDATE ... SET unread_count = unread_count + delta
func (r *fakeChatRepo) applyCache(cache *repositories.ChatCacheUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.ID == cache.ChatID {
			at := cache.LastMessageAt
			preview := cache.LastMessagePreview
			c.LastMessageAt = &at
			c.LastMessagePreview = &preview
			c.UnreadCount += cache.UnreadDelta
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// --- Message ---

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	seq      int64

	// chats nhận cache update trong "transaction" của Append
	chats *fakeChatRepo
}

func newFakeMessageRepo(chats *fakeChatRepo) *fakeMessageRepo {
	return &fakeMessageRepo{chats: chats}
}

func (r *fakeMessageRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) FindByChannelMessageID(ctx context.Context, chatID uuid.UUID, channelMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ChatID == chatID && m.ChannelMessageID != nil && *m.ChannelMessageID == channelMessageID {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) FindByChat(ctx context.Context, chatID uuid.UUID, opts repositories.FindOptions) ([]models.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, int64(len(out)), nil
}

func (r *fakeMessageRepo) Append(ctx context.Context, msg *models.Message, cache *repositories.ChatCacheUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ChannelMessageID != nil {
		for _, m := range r.messages {
			if m.ChatID == msg.ChatID && m.ChannelMessageID != nil && *m.ChannelMessageID == *msg.ChannelMessageID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	stamp(&msg.BaseModel)
	r.seq++
	msg.Seq = r.seq
	r.messages = append(r.messages, msg)
	if cache != nil {
		if err := r.chats.applyCache(cache); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// --- Publisher ---

// recordPublisher ghi lại mọi event đã publish
type recordPublisher struct {
	mu       sync.Mutex
	messages []*realtime.MessageEvent
	chats    []*realtime.ChatEvent
	sessions []*realtime.SessionEvent
}

func newRecordPublisher() *recordPublisher { return &recordPublisher{} }

func (p *recordPublisher) PublishMessage(tenantID uuid.UUID, event *realtime.MessageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, event)
	return nil
}

func (p *recordPublisher) PublishChatUpdate(tenantID uuid.UUID, event *realtime.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, event)
	return nil
}

func (p *recordPublisher) PublishSessionUpdate(tenantID *uuid.UUID, event *realtime.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, event)
	return nil
}
