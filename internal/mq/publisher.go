package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeJobTrigger   MessageType = "job.trigger"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobTriggerPayload — payload ручного запуска задания.
type JobTriggerPayload struct {
	// Kind — вид задания: import, match, execute, export.
	Kind string `json:"kind"`

	// Reason — причина запуска (например, "resume" после действия оператора).
	Reason string `json:"reason,omitempty"`

	// RequestID — запрос, ради которого запущено задание (информативно).
	RequestID *uuid.UUID `json:"request_id,omitempty"`
}

// Publish публикует сообщение в exchange с routing key. Сообщения
// persistent: переживают рестарт RabbitMQ.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			AppId:        "extract",
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJobTrigger публикует ручной запуск задания.
// Потребитель: extract-scheduler.
func (p *Publisher) PublishJobTrigger(ctx context.Context, payload JobTriggerPayload) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyTrigger, MessageTypeJobTrigger, payload)
}

// PublishNotification публикует уведомление для аудитории ("admin" или "operator").
// Неизвестная аудитория уходит операторам. Потребитель: почтовый шлюз.
func (p *Publisher) PublishNotification(ctx context.Context, audience string, payload any) error {
	key := RoutingKeyOperator
	if audience == string(RoutingKeyAdmin) {
		key = RoutingKeyAdmin
	}
	return p.publish(ctx, ExchangeNotifications, key, MessageTypeNotification, payload)
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, routingKey, &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
