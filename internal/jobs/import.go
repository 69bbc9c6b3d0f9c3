package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Import читает новые заказы активных connectors и создаёт запросы.
type Import struct {
	base
	connectors ConnectorFactory
}

// NewImport создаёт раннер Import.
func NewImport(cfg Config) *Import {
	return &Import{
		base:       newBase(domain.JobImport, cfg),
		connectors: cfg.Connectors,
	}
}

// importStats — счётчики импорта одного connector'а.
type importStats struct {
	imported   int
	failed     int
	duplicates int
}

func (s importStats) String() string {
	return fmt.Sprintf("%d imported, %d failed validation, %d duplicates", s.imported, s.failed, s.duplicates)
}

// Run импортирует заказы connectors, у которых истёк интервал импорта.
func (r *Import) Run(ctx context.Context) error {
	connectors, err := r.store.ListConnectors(ctx, true)
	if err != nil {
		return persistErr("list connectors", err)
	}

	now := r.now()
	var due []domain.Connector
	for _, c := range connectors {
		if c.ImportDue(now) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return nil
	}

	r.logger.Debug("importing", "connectors", len(due))
	return forEach(ctx, &r.base, r.workers, due, func(ctx context.Context, c domain.Connector) error {
		return r.importConnector(ctx, &c)
	})
}

func (r *Import) importConnector(ctx context.Context, c *domain.Connector) error {
	logger := telemetry.WithConnectorID(r.logger, c.ID.String())
	started := r.now()

	inst, err := r.connectors.NewConnector(c.Code, c.Params)
	if err != nil {
		return r.importFailed(ctx, c, started, err.Error())
	}
	res := plugin.Import(ctx, inst)
	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "connector reported failure without message"
		}
		return r.importFailed(ctx, c, started, msg)
	}

	var stats importStats
	for _, p := range res.Products {
		req := requestFromProduct(c, p, r.now())
		if err := req.Validate(); err != nil {
			req.Status = domain.RequestStatusImportFail
			req.ErrorCode = ErrorCodeImportValidation
			req.Message = fmt.Errorf("%w: %w", ErrImportValidation, err).Error()
		}

		err := r.store.CreateRequest(ctx, req)
		if errors.Is(err, repo.ErrAlreadyExists) {
			stats.duplicates++
			continue
		}
		if err != nil {
			return persistErr("create request", err)
		}

		status := domain.HistoryStatusFinished
		if req.Status == domain.RequestStatusImportFail {
			status = domain.HistoryStatusError
		}
		if err := r.appendHistory(ctx, req, domain.HistoryLabelImport, status, domain.SystemActor, started); err != nil {
			return err
		}
		r.metrics.Transition(string(req.Status))

		if req.Status == domain.RequestStatusImportFail {
			stats.failed++
			r.metrics.JobItem(string(r.kind), "importfail")
			logger.Warn("imported product failed validation",
				"request_id", req.ID,
				"order", req.OrderLabel,
				"product", req.ProductLabel,
				"message", req.Message,
			)
			r.notify(ctx, notify.ForRequest(notify.EventImportFail, notify.AudienceAdmin, req))
			continue
		}
		stats.imported++
		r.metrics.JobItem(string(r.kind), "processed")
	}

	if err := r.store.RecordImport(ctx, c.ID, started, stats.String(), false); err != nil {
		return persistErr("record import", err)
	}
	logger.Info("connector imported",
		"imported", stats.imported,
		"failed", stats.failed,
		"duplicates", stats.duplicates,
	)
	return nil
}

// importFailed фиксирует неудачный импорт и уведомляет администратора.
func (r *Import) importFailed(ctx context.Context, c *domain.Connector, at time.Time, msg string) error {
	if err := r.store.RecordImport(ctx, c.ID, at, msg, true); err != nil {
		return persistErr("record import", err)
	}

	id := c.ID
	r.notify(ctx, notify.Event{
		Type:        notify.EventImportFailed,
		Audience:    notify.AudienceAdmin,
		ConnectorID: &id,
		Message:     msg,
	})
	return fmt.Errorf("%w: connector %s (%s): %s", ErrImportFailed, c.Label, c.ID, msg)
}

func requestFromProduct(c *domain.Connector, p plugin.Product, now time.Time) *domain.Request {
	return &domain.Request{
		ConnectorID:  c.ID,
		OrderLabel:   p.OrderLabel,
		OrderGUID:    p.OrderGUID,
		ProductLabel: p.ProductLabel,
		ProductGUID:  p.ProductGUID,
		Client:       p.Client,
		ClientGUID:   p.ClientGUID,
		Organism:     p.Organism,
		Tiers:        p.Tiers,
		Perimeter:    p.Perimeter,
		Surface:      p.Surface,
		ExternalURL:  p.ExternalURL,
		Parameters:   p.Parameters,
		Status:       domain.RequestStatusImported,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
