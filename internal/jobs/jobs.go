package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Extract/internal/chain"
	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/rules"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize    = 100
	defaultWorkers      = 4
	defaultLeaseTimeout = 10 * time.Minute
)

// ConnectorFactory создаёт экземпляры коннекторов (реализуется plugin.Registry).
type ConnectorFactory interface {
	NewConnector(code string, params map[string]string) (plugin.SourceConnector, error)
}

// Config — общая конфигурация раннеров.
type Config struct {
	Store      repo.Store
	Connectors ConnectorFactory
	Matcher    *rules.Matcher
	Chain      *chain.Executor
	Notifier   notify.Notifier

	// BatchSize — максимум запросов за один прогон (default: 100).
	BatchSize int

	// Workers — параллелизм по connectors (Import/Export) и запросам (Execute) (default: 4).
	Workers int

	// LeaseTimeout — возраст аренды, после которого она считается брошенной (default: 10m).
	LeaseTimeout time.Duration

	// EscalateAfter — число неудачных сопоставлений до перевода в ERROR (0 — никогда).
	EscalateAfter int

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// base — зависимости, общие для всех раннеров.
type base struct {
	kind         domain.JobKind
	store        repo.Store
	notifier     notify.Notifier
	batchSize    int
	workers      int
	leaseTimeout time.Duration
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

func newBase(kind domain.JobKind, cfg Config) base {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return base{
		kind:         kind,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		batchSize:    cfg.BatchSize,
		workers:      cfg.Workers,
		leaseTimeout: cfg.LeaseTimeout,
		metrics:      cfg.Metrics,
		logger:       telemetry.WithJob(cfg.Logger, string(kind)),
		now:          cfg.Now,
	}
}

// Kind возвращает вид задания.
func (b *base) Kind() domain.JobKind {
	return b.kind
}

// staleBefore — граница, старше которой аренда считается брошенной.
func (b *base) staleBefore(now time.Time) time.Time {
	return now.Add(-b.leaseTimeout)
}

// forEach обрабатывает items не более чем в workers горутинах.
// Ошибка с ErrPersistence прерывает остаток пакета и возвращается: новые
// элементы не запускаются, уже запущенные доходят до конца с ctx вызывающего.
// Остальные ошибки логируются, элемент пропускается.
func forEach[T any](ctx context.Context, b *base, workers int, items []T, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := fn(ctx, item)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrPersistence):
				b.metrics.JobItem(string(b.kind), "failed")
				return err
			default:
				b.metrics.JobItem(string(b.kind), "skipped")
				b.logger.Warn("item skipped", "error", err)
				return nil
			}
		})
	}
	return g.Wait()
}

// persistErr помечает ошибку записи.
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// lost сообщает, что запрос перехвачен другим раннером или исчез.
func lost(err error) bool {
	return errors.Is(err, repo.ErrInvalidState) || errors.Is(err, repo.ErrNotFound)
}

// appendHistory добавляет запись вне цепочки задач (ProcessStep = 0).
func (b *base) appendHistory(ctx context.Context, req *domain.Request, label string, status domain.HistoryStatus, actor string, started time.Time) error {
	ended := b.now()
	rec := &domain.HistoryRecord{
		RequestID: req.ID,
		TaskLabel: label,
		Status:    status,
		Message:   req.Message,
		ErrorCode: req.ErrorCode,
		Actor:     actor,
		StartedAt: started,
		EndedAt:   &ended,
	}
	if err := b.store.AppendHistory(ctx, rec); err != nil {
		return persistErr("append history", err)
	}
	return nil
}

func (b *base) transition(req *domain.Request, to domain.RequestStatus) {
	req.TransitionTo(to, b.now())
	b.metrics.Transition(string(to))
}

func (b *base) notify(ctx context.Context, ev notify.Event) {
	if err := b.notifier.Notify(ctx, ev); err != nil && !errors.Is(err, notify.ErrDisabled) {
		b.logger.Warn("notification failed", "type", ev.Type, "error", err)
	}
}

// errLeaseLost — аренду перехватил другой раннер, пока запрос обрабатывался.
var errLeaseLost = errors.New("lease lost")

// keepLease продлевает аренду token каждые leaseTimeout/3, пока не вызван stop.
// Если аренда потеряна, возвращённый контекст отменяется с причиной errLeaseLost.
// stop дожидается завершения продления.
func (b *base) keepLease(ctx context.Context, id, token uuid.UUID) (context.Context, func()) {
	lctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(b.leaseTimeout/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-lctx.Done():
				return
			case <-ticker.C:
			}
			err := b.store.RenewClaim(context.WithoutCancel(lctx), id, token, b.now())
			switch {
			case err == nil:
			case lost(err):
				b.logger.Warn("lease lost", "request_id", id)
				cancel(errLeaseLost)
				return
			default:
				b.logger.Warn("renew claim failed", "request_id", id, "error", err)
			}
		}
	}()

	return lctx, func() {
		cancel(nil)
		<-done
	}
}

// leaseLost сообщает, что ctx из keepLease отменён из-за потери аренды.
func leaseLost(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errLeaseLost)
}

// release снимает аренду без изменения запроса.
func (b *base) release(id, token uuid.UUID) {
	if err := b.store.ReleaseClaim(context.Background(), id, token); err != nil && !lost(err) {
		b.logger.Warn("release claim failed", "request_id", id, "error", err)
	}
}
