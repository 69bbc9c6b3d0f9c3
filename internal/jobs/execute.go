package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/chain"
	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Execute выполняет цепочки задач запросов в статусе RUNNING.
type Execute struct {
	base
	chain *chain.Executor
}

// NewExecute создаёт раннер Execute.
func NewExecute(cfg Config) *Execute {
	return &Execute{
		base:  newBase(domain.JobExecute, cfg),
		chain: cfg.Chain,
	}
}

// Run захватывает и выполняет пакет запросов параллельно, не более Workers одновременно.
func (r *Execute) Run(ctx context.Context) error {
	requests, err := r.store.ListEligible(ctx, domain.RequestStatusRunning, r.staleBefore(r.now()), r.batchSize)
	if err != nil {
		return persistErr("list running requests", err)
	}
	if len(requests) == 0 {
		return nil
	}

	return forEach(ctx, &r.base, r.workers, requests, func(ctx context.Context, req domain.Request) error {
		return r.executeOne(ctx, req.ID)
	})
}

func (r *Execute) executeOne(ctx context.Context, id uuid.UUID) error {
	logger := telemetry.WithRequestID(r.logger, id.String())
	token := uuid.New()
	now := r.now()

	req, err := r.store.ClaimRequest(ctx, id, domain.RequestStatusRunning, token, now, r.staleBefore(now))
	if err != nil {
		if lost(err) {
			logger.Debug("request claimed by another runner")
			r.metrics.JobItem(string(r.kind), "lost")
			return nil
		}
		return persistErr("claim request", err)
	}

	tasks, err := r.tasks(ctx, req)
	if errors.Is(err, ErrNoProcess) {
		req.ErrorCode = ErrorCodeNoProcess
		req.Message = err.Error()
		r.transition(req, domain.RequestStatusError)
		r.notify(ctx, notify.ForRequest(notify.EventRequestError, notify.AudienceAdmin, req))
		return r.save(ctx, req, token)
	}
	if err != nil {
		r.release(req.ID, token)
		return err
	}

	// Аренда продлевается, пока идёт цепочка; после каждой задачи сохраняется
	// TaskIndex, и перехваченный после сбоя запрос продолжается со следующей задачи.
	lctx, stop := r.keepLease(ctx, req.ID, token)
	out, err := r.chain.Run(lctx, req, tasks, func(ctx context.Context, req *domain.Request) error {
		return r.store.SaveProgress(ctx, req, token, r.now())
	})
	stop()
	if err != nil {
		switch {
		case lost(err) || leaseLost(lctx):
			logger.Warn("lease lost during chain", "task_index", req.TaskIndex)
			r.metrics.JobItem(string(r.kind), "lost")
			return nil
		case ctx.Err() != nil:
			// Остановка между задачами: сохраняем достигнутый TaskIndex.
			logger.Info("chain interrupted", "task_index", req.TaskIndex)
			return r.save(context.WithoutCancel(ctx), req, token)
		default:
			r.release(req.ID, token)
			return persistErr("run chain", err)
		}
	}
	if out.Failure != nil {
		logger.Warn("task could not run", "error", out.Failure)
	}

	if err := r.save(ctx, req, token); err != nil {
		return err
	}
	r.metrics.JobItem(string(r.kind), "processed")
	logger.Debug("chain run saved", "status", req.Status, "task_index", req.TaskIndex, "executed", out.Executed)
	return nil
}

// tasks возвращает задачи назначенного процесса.
func (r *Execute) tasks(ctx context.Context, req *domain.Request) ([]domain.Task, error) {
	if req.ProcessID == nil {
		return nil, ErrNoProcess
	}
	proc, err := r.store.GetProcess(ctx, *req.ProcessID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: process %s not found", ErrNoProcess, *req.ProcessID)
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	return proc.Tasks, nil
}

// save сохраняет запрос и снимает аренду. Потерянная аренда не ошибка пакета:
// запрос уже обработан другим раннером.
func (r *Execute) save(ctx context.Context, req *domain.Request, token uuid.UUID) error {
	err := r.store.SaveClaimed(ctx, req, token)
	if lost(err) {
		r.logger.Warn("lease lost before save", "request_id", req.ID)
		r.metrics.JobItem(string(r.kind), "lost")
		return nil
	}
	if err != nil {
		return persistErr("save request", err)
	}
	return nil
}
