package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMalformed — сообщение не удалось разобрать. Такое сообщение
// не возвращается в очередь даже при RequeueOnError.
var ErrMalformed = errors.New("malformed message")

// Handler — функция обработки сообщения.
// Ошибка приводит к nack.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — разобранное сообщение.
type Delivery struct {
	Message Message

	// Redelivered — сообщение уже доставлялось и было возвращено в очередь.
	Redelivered bool
}

// TriggerHandler адаптирует обработчик ручных запусков к Handler.
func TriggerHandler(fn func(ctx context.Context, payload JobTriggerPayload) error) Handler {
	return func(ctx context.Context, msg *Delivery) error {
		payload, err := ParsePayload[JobTriggerPayload](&msg.Message)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return fn(ctx, payload)
	}
}

// Consumer потребляет сообщения одного типа из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	msgType  MessageType
	handler  Handler
	prefetch int
	requeue  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue Queue

	// Type — ожидаемый тип сообщений. Сообщения другого типа подтверждаются
	// и отбрасываются. Пустое значение принимает любые.
	Type MessageType

	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки (default: 1).
	Prefetch int

	// RequeueOnError — вернуть сообщение в очередь при ошибке обработчика.
	// false — сообщение уходит в DLQ, если она настроена.
	RequeueOnError bool
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("component", "consumer", "queue", cfg.Queue),
		queue:    cfg.Queue,
		msgType:  cfg.Type,
		handler:  cfg.Handler,
		prefetch: prefetch,
		requeue:  cfg.RequeueOnError,
	}
}

// Start запускает потребление и блокируется до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer close(done)
	return c.consume(ctx)
}

// Stop останавливает consumer и ждёт завершения текущего сообщения.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Consumer) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started")

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting")
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue),
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery разбирает и обрабатывает одно сообщение, затем ack/nack.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		_ = raw.Nack(false, false)
		return
	}

	log := c.logger.With("message_id", msg.ID, "type", msg.Type)

	if c.msgType != "" && msg.Type != c.msgType {
		log.Warn("unexpected message type, dropping")
		_ = raw.Ack(false)
		return
	}

	log.Debug("received message", "redelivered", raw.Redelivered)

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	if err != nil {
		requeue := c.requeue && !errors.Is(err, ErrMalformed)
		log.Error("handler failed", "error", err, "requeue", requeue)
		_ = raw.Nack(false, requeue)
		return
	}

	_ = raw.Ack(false)
}

// ParsePayload разбирает payload сообщения в тип T.
// После json.Unmarshal сообщения payload — map, поэтому он проходит
// повторный marshal.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
