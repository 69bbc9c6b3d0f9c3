// Package app собирает компоненты движка из конфигурации: хранилище,
// реестр плагинов, раннеры заданий и планировщик. Используется бинарниками
// extract-scheduler и extract-api.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Extract/internal/chain"
	"github.com/shaiso/Extract/internal/config"
	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/jobs"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/plugin/builtin"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/repo/litestore"
	"github.com/shaiso/Extract/internal/rules"
	"github.com/shaiso/Extract/internal/scheduler"
	"github.com/shaiso/Extract/internal/telemetry"
)

// OpenStore открывает хранилище по cfg.DBURL: sqlite://путь — встроенное,
// иначе Postgres. Миграции применяются при открытии.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Store, error) {
	if path, ok := cfg.SQLitePath(); ok {
		store, err := litestore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("using embedded store", "path", path)
		return store, nil
	}

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("using postgres store")
	return repo.NewPostgres(pool), nil
}

// NewRegistry создаёт реестр плагинов со встроенным источником.
func NewRegistry(cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) *plugin.Registry {
	return plugin.NewRegistry(plugin.Config{
		Language:  cfg.Language,
		Sources:   cfg.PluginSources,
		Builtins:  []plugin.Source{builtin.Source()},
		OnRebuild: metrics.RegistryRebuilt,
		Logger:    logger,
	})
}

// Engine — собранный движок демона планировщика.
type Engine struct {
	Store     repo.Store
	Registry  *plugin.Registry
	Notifier  notify.Notifier
	Jobs      []scheduler.Job
	Scheduler *scheduler.Scheduler

	logger *slog.Logger
}

// EngineConfig — зависимости Engine.
type EngineConfig struct {
	Config   *config.Config
	Store    repo.Store
	Registry *plugin.Registry

	// Publisher может быть nil: уведомления тогда только логируются.
	Publisher *mq.Publisher

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewEngine собирает раннеры и планировщик.
func NewEngine(ec EngineConfig) *Engine {
	cfg := ec.Config
	logger := ec.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sink notify.Sink
	if ec.Publisher != nil {
		sink = notify.NewMQSink(ec.Publisher)
	}
	email := cfg.Email
	notifier := notify.NewDispatcher(notify.Config{
		Settings:      &email,
		Sink:          sink,
		RatePerMinute: cfg.Notify.RatePerMinute,
		Burst:         cfg.Notify.Burst,
		Metrics:       ec.Metrics,
		Logger:        logger,
	})

	jobsCfg := jobs.Config{
		Store:      ec.Store,
		Connectors: ec.Registry,
		Matcher:    rules.NewMatcher(logger),
		Chain: chain.New(chain.Config{
			Tasks:    ec.Registry,
			History:  ec.Store,
			Notifier: notifier,
			Email:    &email,
			Metrics:  ec.Metrics,
			Logger:   logger,
		}),
		Notifier:      notifier,
		BatchSize:     cfg.Jobs.BatchSize,
		Workers:       cfg.Jobs.Workers,
		LeaseTimeout:  cfg.Jobs.LeaseTimeout,
		EscalateAfter: cfg.Jobs.EscalateAfter,
		Metrics:       ec.Metrics,
		Logger:        logger,
	}

	runners := []scheduler.Job{
		jobs.NewImport(jobsCfg),
		jobs.NewMatch(jobsCfg),
		jobs.NewExecute(jobsCfg),
		jobs.NewExport(jobsCfg),
	}
	sync := jobs.NewPluginSync(ec.Registry, logger)

	sched := scheduler.New(scheduler.Config{
		Jobs:         runners,
		Sync:         sync,
		Settings:     ec.Store,
		DefaultMode:  cfg.Mode(),
		TickInterval: cfg.Scheduler.TickInterval,
		Metrics:      ec.Metrics,
		Logger:       logger,
	})

	return &Engine{
		Store:     ec.Store,
		Registry:  ec.Registry,
		Notifier:  notifier,
		Jobs:      append(runners, sync),
		Scheduler: sched,
		logger:    logger.With("component", "engine"),
	}
}

// HandleTrigger обрабатывает ручной запуск из очереди jobs.trigger: запускает
// вид задания вне расписания. Задание, которое уже выполняется, не запускается
// повторно.
func (e *Engine) HandleTrigger(_ context.Context, payload mq.JobTriggerPayload) error {
	kind, err := domain.ParseJobKind(payload.Kind)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
	}

	err = e.Scheduler.Trigger(kind)
	switch {
	case err == nil:
		e.logger.Info("job triggered", "job", kind, "reason", payload.Reason)
		return nil
	case errors.Is(err, scheduler.ErrJobRunning):
		// Идущий прогон подберёт запрос сам или на следующем тике.
		e.logger.Debug("trigger ignored, job running", "job", kind)
		return nil
	default:
		return err
	}
}
