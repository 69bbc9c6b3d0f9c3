package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Export отправляет результаты запросов FINISHED обратно в исходную систему.
type Export struct {
	base
	connectors ConnectorFactory
}

// NewExport создаёт раннер Export.
func NewExport(cfg Config) *Export {
	return &Export{
		base:       newBase(domain.JobExport, cfg),
		connectors: cfg.Connectors,
	}
}

// Run экспортирует пакет запросов. Уже экспортированные запросы не попадают
// в выборку, поэтому повторный прогон не вызывает коннектор повторно.
func (r *Export) Run(ctx context.Context) error {
	requests, err := r.store.ListEligible(ctx, domain.RequestStatusFinished, r.staleBefore(r.now()), r.batchSize)
	if err != nil {
		return persistErr("list finished requests", err)
	}
	if len(requests) == 0 {
		return nil
	}

	return forEach(ctx, &r.base, r.workers, requests, func(ctx context.Context, req domain.Request) error {
		return r.exportOne(ctx, req.ID)
	})
}

func (r *Export) exportOne(ctx context.Context, id uuid.UUID) error {
	logger := telemetry.WithRequestID(r.logger, id.String())
	token := uuid.New()
	started := r.now()

	req, err := r.store.ClaimRequest(ctx, id, domain.RequestStatusFinished, token, started, r.staleBefore(started))
	if err != nil {
		if lost(err) {
			r.metrics.JobItem(string(r.kind), "lost")
			return nil
		}
		return persistErr("claim request", err)
	}

	connector, err := r.store.GetConnector(ctx, req.ConnectorID)
	if err != nil {
		r.release(req.ID, token)
		return fmt.Errorf("get connector: %w", err)
	}

	lctx, stop := r.keepLease(ctx, req.ID, token)
	res := r.export(lctx, connector, req)
	stop()
	if leaseLost(lctx) {
		logger.Warn("lease lost during export", "success", res.Success)
		r.metrics.JobItem(string(r.kind), "lost")
		return nil
	}
	if res.Success {
		req.Message = res.ResultMessage
		req.ErrorCode = ""
		r.transition(req, domain.RequestStatusExported)
	} else {
		req.ErrorCode = res.ResultCode
		if req.ErrorCode == "" {
			req.ErrorCode = ErrorCodeExportFailed
		}
		req.Message = res.ErrorDetails
		if req.Message == "" {
			req.Message = res.ResultMessage
		}
		r.transition(req, domain.RequestStatusError)
	}

	if err := r.store.SaveClaimed(ctx, req, token); err != nil {
		if lost(err) {
			logger.Warn("lease lost before save")
			r.metrics.JobItem(string(r.kind), "lost")
			return nil
		}
		return persistErr("save request", err)
	}

	status := domain.HistoryStatusFinished
	if !res.Success {
		status = domain.HistoryStatusError
	}
	if err := r.appendHistory(ctx, req, domain.HistoryLabelExport, status, domain.SystemActor, started); err != nil {
		return err
	}

	if !res.Success {
		r.metrics.JobItem(string(r.kind), "failed_export")
		logger.Warn("export failed", "error_code", req.ErrorCode, "message", req.Message)
		r.notify(ctx, notify.ForRequest(notify.EventExportFailed, notify.AudienceAdmin, req))
		return nil
	}
	r.metrics.JobItem(string(r.kind), "processed")
	logger.Info("request exported", "result_code", res.ResultCode)
	return nil
}

// export создаёт экземпляр коннектора и вызывает экспорт.
// Недоступный коннектор превращается в неуспешный результат.
func (r *Export) export(ctx context.Context, c *domain.Connector, req *domain.Request) plugin.ExportResult {
	inst, err := r.connectors.NewConnector(c.Code, c.Params)
	if err != nil {
		code := plugin.ErrorCodeInstance
		if errors.Is(err, plugin.ErrUnavailable) {
			code = plugin.ErrorCodeUnavailable
		}
		return plugin.ExportResult{ResultCode: code, ErrorDetails: err.Error()}
	}
	return plugin.Export(ctx, inst, plugin.ExportRequest{Request: req.Snapshot()})
}
