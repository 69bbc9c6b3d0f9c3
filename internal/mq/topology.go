package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeNotifications Exchange = "extract.notifications"
	ExchangeJobs          Exchange = "extract.jobs"
	ExchangeDLQ           Exchange = "extract.dlq"
)

// Queues — имена очередей.
const (
	QueueNotificationsAdmin    Queue = "notifications.admin"
	QueueNotificationsOperator Queue = "notifications.operator"
	QueueJobsTrigger           Queue = "jobs.trigger"
	QueueDLQNotifications      Queue = "dlq.notifications"
)

// Routing keys.
const (
	RoutingKeyAdmin     RoutingKey = "admin"
	RoutingKeyOperator  RoutingKey = "operator"
	RoutingKeyTrigger   RoutingKey = "trigger"
	RoutingKeyDLQNotify RoutingKey = "notifications"
)

// TriggerTTL — срок жизни ручного запуска в очереди. Более старый запуск
// бесполезен: задание за это время уже отработает по расписанию.
const TriggerTTL = 5 * time.Minute

type exchangeDef struct {
	name Exchange
	kind string
}

type queueDef struct {
	name     Queue
	args     amqp.Table
	consumer string
}

type bindingDef struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// Топология Extract. Все объекты durable.
var (
	exchanges = []exchangeDef{
		{ExchangeNotifications, amqp.ExchangeDirect},
		{ExchangeJobs, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	// Уведомления, которые не удалось доставить, уходят в DLQ.
	notifyArgs = amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQNotify),
	}

	queues = []queueDef{
		{QueueNotificationsAdmin, notifyArgs, "mail gateway"},
		{QueueNotificationsOperator, notifyArgs, "mail gateway"},
		{QueueJobsTrigger, amqp.Table{"x-message-ttl": TriggerTTL.Milliseconds()}, "extract-scheduler"},
		{QueueDLQNotifications, nil, "manual processing"},
	}

	bindings = []bindingDef{
		{QueueNotificationsAdmin, RoutingKeyAdmin, ExchangeNotifications},
		{QueueNotificationsOperator, RoutingKeyOperator, ExchangeNotifications},
		{QueueJobsTrigger, RoutingKeyTrigger, ExchangeJobs},
		{QueueDLQNotifications, RoutingKeyDLQNotify, ExchangeDLQ},
	}
)

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна,
// пока аргументы очередей не меняются: иначе RabbitMQ закрывает канал
// с PRECONDITION_FAILED.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}
		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}
		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	consumers := make(map[Queue]string, len(queues))
	for _, q := range queues {
		consumers[q.name] = q.consumer
	}

	var b strings.Builder
	b.WriteString("Extract RabbitMQ topology:\n")
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "  %s (%s)\n", ex.name, ex.kind)
		for _, bd := range bindings {
			if bd.exchange != ex.name {
				continue
			}
			fmt.Fprintf(&b, "    %s [routing: %s] consumer: %s\n", bd.queue, bd.routingKey, consumers[bd.queue])
		}
	}
	return b.String()
}
