// Package notify решает, когда и кому отправить уведомление.
//
// Движок не формирует тексты писем: Dispatcher собирает Event с данными
// запроса, проверяет настройки (Enabled), ограничивает частоту и передаёт
// событие в Sink (RabbitMQ для почтового шлюза или лог).
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Audience — получатели уведомления.
type Audience string

const (
	AudienceOperator Audience = "operator"
	AudienceAdmin    Audience = "admin"
)

// EventType — повод уведомления.
type EventType string

const (
	EventRequestStandby EventType = "request.standby"
	EventRequestError   EventType = "request.error"
	EventImportFail     EventType = "request.importfail"
	EventUnmatched      EventType = "request.unmatched"
	EventExportFailed   EventType = "request.export_failed"
	EventImportFailed   EventType = "connector.import_failed"
)

// Ошибки отправки.
var (
	// ErrDisabled — уведомления выключены в настройках.
	ErrDisabled = errors.New("notifications disabled")

	// ErrThrottled — превышен лимит частоты отправки.
	ErrThrottled = errors.New("notification throttled")
)

// Event — данные уведомления.
type Event struct {
	Type        EventType  `json:"type"`
	Audience    Audience   `json:"audience"`
	Recipients  []string   `json:"recipients,omitempty"`
	From        string     `json:"from,omitempty"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	ConnectorID *uuid.UUID `json:"connector_id,omitempty"`
	OrderLabel  string     `json:"order_label,omitempty"`
	Product     string     `json:"product,omitempty"`
	Client      string     `json:"client,omitempty"`
	Status      string     `json:"status,omitempty"`
	TaskLabel   string     `json:"task_label,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	Message     string     `json:"message,omitempty"`
	Time        time.Time  `json:"time"`
}

// ForRequest заполняет Event данными запроса.
func ForRequest(t EventType, a Audience, req *domain.Request) Event {
	id := req.ID
	connectorID := req.ConnectorID
	return Event{
		Type:        t,
		Audience:    a,
		RequestID:   &id,
		ConnectorID: &connectorID,
		OrderLabel:  req.OrderLabel,
		Product:     req.ProductLabel,
		Client:      req.Client,
		Status:      string(req.Status),
		ErrorCode:   req.ErrorCode,
		Message:     req.Message,
	}
}

// Notifier — получатель событий для уведомлений.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Sink — транспорт уведомлений.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// Config — настройки Dispatcher.
type Config struct {
	// Settings — настройки уведомлений (по ссылке).
	Settings *domain.EmailSettings

	// Sink — транспорт. По умолчанию LogSink.
	Sink Sink

	// RatePerMinute — максимум уведомлений в минуту (0 — без ограничения).
	RatePerMinute int

	// Burst — допустимый всплеск. По умолчанию 10.
	Burst int

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Dispatcher — основной Notifier.
type Dispatcher struct {
	settings *domain.EmailSettings
	sink     Sink
	limiter  *rate.Limiter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewLogSink(cfg.Logger)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), cfg.Burst)
	}

	return &Dispatcher{
		settings: cfg.Settings,
		sink:     cfg.Sink,
		limiter:  limiter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "notify"),
		now:      time.Now,
	}
}

// Notify отправляет событие, если уведомления включены и лимит не превышен.
// Ошибки возвращаются вызывающему для логирования; на обработку запроса они не влияют.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	if d.settings == nil || !d.settings.Enabled {
		d.metrics.Notification(string(ev.Type), "disabled")
		return ErrDisabled
	}
	if !d.limiter.Allow() {
		d.metrics.Notification(string(ev.Type), "throttled")
		d.logger.Warn("notification throttled", "type", ev.Type, "request_id", ev.RequestID)
		return ErrThrottled
	}

	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	ev.From = d.settings.From
	if len(ev.Recipients) == 0 {
		switch ev.Audience {
		case AudienceAdmin:
			ev.Recipients = d.settings.Admins
		default:
			ev.Recipients = d.settings.Operators
		}
	}

	if err := d.sink.Send(ctx, ev); err != nil {
		d.metrics.Notification(string(ev.Type), "failed")
		return err
	}
	d.metrics.Notification(string(ev.Type), "sent")
	return nil
}

// LogSink пишет уведомления в лог (режим без RabbitMQ).
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send логирует событие.
func (s *LogSink) Send(_ context.Context, ev Event) error {
	s.logger.Info("notification",
		"type", ev.Type,
		"audience", ev.Audience,
		"recipients", ev.Recipients,
		"request_id", ev.RequestID,
		"error_code", ev.ErrorCode,
		"message", ev.Message,
	)
	return nil
}

// MQSink публикует уведомления в RabbitMQ.
type MQSink struct {
	publisher *mq.Publisher
}

// NewMQSink создаёт MQSink.
func NewMQSink(publisher *mq.Publisher) *MQSink {
	return &MQSink{publisher: publisher}
}

// Send публикует событие с routing key по аудитории.
func (s *MQSink) Send(ctx context.Context, ev Event) error {
	return s.publisher.PublishNotification(ctx, string(ev.Audience), ev)
}

// Nop — Notifier, который ничего не делает.
type Nop struct{}

// Notify ничего не делает.
func (Nop) Notify(context.Context, Event) error { return nil }
