package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ===========================================================================
// AMQP Event Bridge
// Mirror các sự kiện realtime ra topic exchange để các service khác
// (analytics, audit) consume độc lập với dashboard websocket
// ===========================================================================

// EventEnvelope cấu trúc message trên exchange
type EventEnvelope struct {
	Meta EventMeta   `json:"meta"`
	Data interface{} `json:"data"`
}

// EventMeta metadata của event
type EventMeta struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	TenantID   *uuid.UUID `json:"tenant_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// AMQPBridge implements Publisher, phát event lên RabbitMQ topic exchange
type AMQPBridge struct {
	conn     *amqp091.Connection
	exchange string
	logger   *zap.Logger
}

// NewAMQPBridge kết nối RabbitMQ và declare topic exchange
func NewAMQPBridge(url, exchange string, logger *zap.Logger) (*AMQPBridge, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPBridge{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// publish gửi envelope lên exchange với routing key
func (b *AMQPBridge) publish(key, kind string, tenantID *uuid.UUID, data interface{}) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	envelope := EventEnvelope{
		Meta: EventMeta{
			ID:         uuid.NewString(),
			Kind:       kind,
			TenantID:   tenantID,
			OccurredAt: time.Now(),
		},
		Data: data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(
		ctx, b.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    envelope.Meta.ID,
			Timestamp:    envelope.Meta.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		b.logger.Warn("amqp publish failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}

	b.logger.Debug("published to amqp",
		zap.String("key", key),
		zap.String("exchange", b.exchange),
	)
	return nil
}

// PublishMessage phát event tin nhắn mới
func (b *AMQPBridge) PublishMessage(tenantID uuid.UUID, event *MessageEvent) error {
	event.Type = "message"
	return b.publish("message.created", "message", &tenantID, event)
}

// PublishChatUpdate phát event thay đổi chat
func (b *AMQPBridge) PublishChatUpdate(tenantID uuid.UUID, event *ChatEvent) error {
	event.Type = "chat_update"
	return b.publish("chat.updated", "chat_update", &tenantID, event)
}

// PublishSessionUpdate phát event vòng đời session
func (b *AMQPBridge) PublishSessionUpdate(tenantID *uuid.UUID, event *SessionEvent) error {
	event.Type = "session_update"
	return b.publish("session.updated", "session_update", tenantID, event)
}

// Close đóng kết nối RabbitMQ
func (b *AMQPBridge) Close() error {
	return b.conn.Close()
}
