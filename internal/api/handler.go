package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Extract/internal/jobs"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/scheduler"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Catalog — каталог плагинов (реализуется plugin.Registry).
type Catalog interface {
	DiscoverConnectors(force bool) map[string]plugin.SourceConnector
	DiscoverTasks(force bool) map[string]plugin.TaskProcessor
}

// Triggerer передаёт демону команду запустить задание (реализуется mq.Publisher).
type Triggerer interface {
	PublishJobTrigger(ctx context.Context, payload mq.JobTriggerPayload) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store       repo.Store
	actions     *jobs.Actions
	catalog     Catalog
	trigger     Triggerer
	defaultMode scheduler.Mode
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store   repo.Store
	Actions *jobs.Actions
	Catalog Catalog

	// Trigger может быть nil: тогда ручной запуск недоступен,
	// а действия оператора ждут следующего тика планировщика.
	Trigger Triggerer

	// DefaultMode — режим видов заданий без сохранённых настроек.
	DefaultMode scheduler.Mode

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = scheduler.ModeOn
	}
	if cfg.Actions == nil {
		cfg.Actions = jobs.NewActions(cfg.Store, cfg.Metrics, cfg.Logger)
	}
	return &Handler{
		store:       cfg.Store,
		actions:     cfg.Actions,
		catalog:     cfg.Catalog,
		trigger:     cfg.Trigger,
		defaultMode: cfg.DefaultMode,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With("component", "api"),
		now:         time.Now,
	}
}
