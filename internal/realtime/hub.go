package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ===========================================================================
// Websocket Hub
// Phát sự kiện realtime cho dashboard qua websocket
// Mỗi client subscribe theo tenant; Publish không bao giờ block:
// client chậm bị drop event (buffer đầy) thay vì kéo chậm pipeline
// ===========================================================================

const (
	// writeWait thời gian tối đa cho một lần ghi
	writeWait = 10 * time.Second

	// pongWait thời gian chờ pong từ client
	pongWait = 60 * time.Second

	// pingPeriod chu kỳ gửi ping (phải nhỏ hơn pongWait)
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize số event buffer cho mỗi client
	sendBufferSize = 64
)

// wireEvent envelope gửi xuống client
type wireEvent struct {
	Kind     string      `json:"kind"`
	TenantID *uuid.UUID  `json:"tenant_id,omitempty"`
	Payload  interface{} `json:"payload"`
}

// Subscription một client đang lắng nghe events
// TenantID nil = lắng nghe mọi tenant (platform scope)
type Subscription struct {
	// TenantID tenant mà client quan tâm
	TenantID *uuid.UUID

	send chan []byte
}

// C trả về channel nhận events (để testing và write pump)
func (s *Subscription) C() <-chan []byte {
	return s.send
}

// Hub quản lý tất cả websocket subscriptions
type Hub struct {
	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan broadcastMsg

	// subs được sở hữu độc quyền bởi Run loop
	subs map[*Subscription]bool

	logger *zap.Logger
}

// broadcastMsg một event chờ phát
type broadcastMsg struct {
	// tenantID nil = phát cho tất cả subscriptions
	tenantID *uuid.UUID
	data     []byte
}

// NewHub tạo Hub mới, caller phải gọi Run trong một goroutine riêng
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan broadcastMsg, 256),
		subs:       make(map[*Subscription]bool),
		logger:     logger,
	}
}

// Run vòng lặp chính của hub, serialize mọi thao tác trên subs map
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.subs[sub] = true

		case sub := <-h.unregister:
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.send)
			}

		case msg := <-h.broadcast:
			for sub := range h.subs {
				if !h.matches(sub, msg.tenantID) {
					continue
				}
				select {
				case sub.send <- msg.data:
				default:
					// Client chậm: drop event, không block pipeline
					h.logger.Warn("realtime event dropped, slow client")
				}
			}
		}
	}
}

// matches kiểm tra subscription có nhận event của tenant này không
func (h *Hub) matches(sub *Subscription, tenantID *uuid.UUID) bool {
	if tenantID == nil || sub.TenantID == nil {
		// Event cấp platform đến mọi client; client platform nhận mọi event
		return true
	}
	return *sub.TenantID == *tenantID
}

// Subscribe đăng ký một subscription mới với hub
func (h *Hub) Subscribe(tenantID *uuid.UUID) *Subscription {
	sub := &Subscription{
		TenantID: tenantID,
		send:     make(chan []byte, sendBufferSize),
	}
	h.register <- sub
	return sub
}

// Unsubscribe gỡ subscription khỏi hub
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.unregister <- sub
}

// publish marshal event và đẩy vào broadcast queue, không block
func (h *Hub) publish(kind string, tenantID *uuid.UUID, payload interface{}) error {
	data, err := json.Marshal(wireEvent{
		Kind:     kind,
		TenantID: tenantID,
		Payload:  payload,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- broadcastMsg{tenantID: tenantID, data: data}:
	default:
		h.logger.Warn("realtime broadcast queue full, event dropped",
			zap.String("kind", kind))
	}
	return nil
}

// ===========================================================================
// Publisher implementation
// ===========================================================================

// PublishMessage phát event tin nhắn mới cho tenant
func (h *Hub) PublishMessage(tenantID uuid.UUID, event *MessageEvent) error {
	event.Type = "message"
	return h.publish("message", &tenantID, event)
}

// PublishChatUpdate phát event thay đổi chat cho tenant
func (h *Hub) PublishChatUpdate(tenantID uuid.UUID, event *ChatEvent) error {
	event.Type = "chat_update"
	return h.publish("chat_update", &tenantID, event)
}

// PublishSessionUpdate phát event vòng đời session
// tenantID nil (session cấp platform) phát cho tất cả clients
func (h *Hub) PublishSessionUpdate(tenantID *uuid.UUID, event *SessionEvent) error {
	event.Type = "session_update"
	return h.publish("session_update", tenantID, event)
}

// ===========================================================================
// Websocket client plumbing
// ===========================================================================

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard origin được kiểm soát bởi CORS middleware phía trước
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrade HTTP request thành websocket connection và gắn vào hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, tenantID *uuid.UUID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := h.Subscribe(tenantID)

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)

	return nil
}

// writePump đẩy events từ subscription xuống websocket connection
func (h *Hub) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump đọc (và bỏ qua) messages từ client, phát hiện disconnect
func (h *Hub) readPump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		h.Unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
