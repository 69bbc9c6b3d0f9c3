// Package chain выполняет цепочку задач процесса над одним запросом.
//
// Задачи выполняются строго по возрастанию Position, начиная с
// Request.TaskIndex. После каждой задачи в историю добавляется ровно одна
// запись. Цепочка останавливается на STANDBY, ERROR/NOT_RUN и на SUCCESS
// с выставленным флагом отклонения.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/telemetry"
)

// ErrNotRunning — цепочку можно запускать только для запроса в RUNNING.
var ErrNotRunning = errors.New("request is not running")

// TaskFactory создаёт экземпляры обработчиков (реализуется plugin.Registry).
type TaskFactory interface {
	NewTask(code string, params map[string]string) (plugin.TaskProcessor, error)
}

// HistoryWriter добавляет записи истории. Step назначает хранилище.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error
}

// Config — настройки Executor.
type Config struct {
	Tasks    TaskFactory
	History  HistoryWriter
	Notifier notify.Notifier

	// Email передаётся в каждую задачу по ссылке.
	Email *domain.EmailSettings

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Executor — исполнитель цепочки задач.
type Executor struct {
	tasks    TaskFactory
	history  HistoryWriter
	notifier notify.Notifier
	email    *domain.EmailSettings
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		tasks:    cfg.Tasks,
		history:  cfg.History,
		notifier: cfg.Notifier,
		email:    cfg.Email,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "chain"),
		now:      cfg.Now,
	}
}

// Checkpoint сохраняет прогресс запроса после успешной задачи, за которой
// следует ещё одна. Ошибка останавливает цепочку.
type Checkpoint func(ctx context.Context, req *domain.Request) error

// Outcome — итог одного прогона цепочки.
type Outcome struct {
	// Executed — число вызванных задач.
	Executed int

	// Failure — причина ERROR, если задача не смогла выполниться
	// (plugin.ErrUnavailable, plugin.ErrInstantiation). Nil для штатных исходов.
	Failure error
}

// Run выполняет задачи процесса, начиная с req.TaskIndex, и переводит запрос
// в FINISHED, STANDBY, ERROR или REJECTED. Запрос изменяется на месте;
// сохранение запроса — забота вызывающего.
//
// Ошибка возвращается при сбое записи истории, ошибке checkpoint или отмене
// ctx между задачами; в последнем случае запрос остаётся RUNNING с TaskIndex
// следующей задачи. checkpoint может быть nil.
//
// Запись истории и checkpoint вызванной задачи не прерываются отменой ctx.
func (e *Executor) Run(ctx context.Context, req *domain.Request, tasks []domain.Task, checkpoint Checkpoint) (Outcome, error) {
	var out Outcome

	if req.Status != domain.RequestStatusRunning {
		return out, fmt.Errorf("%w: %s", ErrNotRunning, req.Status)
	}

	ordered := make([]domain.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	logger := telemetry.WithRequestID(e.logger, req.ID.String())
	start := max(req.TaskIndex, 0)

	for i := start; i < len(ordered); i++ {
		if err := ctx.Err(); err != nil {
			req.TaskIndex = i
			return out, err
		}

		task := ordered[i]
		started := e.now()

		res, failure := e.invoke(ctx, req, task)
		wctx := context.WithoutCancel(ctx)
		if failure == nil {
			out.Executed++
		} else {
			out.Failure = failure
		}

		rejectedNow := req.Apply(res.Update)
		req.Message = res.Message
		req.ErrorCode = res.ErrorCode

		rec := &domain.HistoryRecord{
			RequestID:   req.ID,
			ProcessStep: i + 1,
			TaskCode:    task.Code,
			TaskLabel:   taskLabel(task),
			Status:      historyStatus(res.Status),
			Message:     res.Message,
			ErrorCode:   res.ErrorCode,
			Actor:       domain.SystemActor,
			StartedAt:   started,
		}
		ended := e.now()
		rec.EndedAt = &ended

		if err := e.history.AppendHistory(wctx, rec); err != nil {
			return out, fmt.Errorf("append history: %w", err)
		}

		logger.Debug("task executed",
			"task", task.Code,
			"position", task.Position,
			"status", res.Status,
			"error_code", res.ErrorCode,
		)

		switch res.Status {
		case plugin.TaskStatusSuccess:
			if rejectedNow {
				req.TaskIndex = i + 1
				e.transition(req, domain.RequestStatusRejected)
				logger.Info("request rejected by task", "task", task.Code)
				return out, nil
			}
			if checkpoint != nil && i+1 < len(ordered) {
				req.TaskIndex = i + 1
				if err := checkpoint(wctx, req); err != nil {
					return out, fmt.Errorf("checkpoint: %w", err)
				}
			}

		case plugin.TaskStatusStandby:
			req.TaskIndex = i + 1
			e.transition(req, domain.RequestStatusStandby)
			logger.Info("request waiting for operator", "task", task.Code, "message", res.Message)
			e.notify(wctx, notify.EventRequestStandby, notify.AudienceOperator, req, task)
			return out, nil

		default:
			req.TaskIndex = i
			e.transition(req, domain.RequestStatusError)
			logger.Warn("task failed",
				"task", task.Code,
				"status", res.Status,
				"error_code", res.ErrorCode,
				"message", res.Message,
			)
			e.notify(wctx, notify.EventRequestError, notify.AudienceAdmin, req, task)
			return out, nil
		}
	}

	req.TaskIndex = len(ordered)
	e.transition(req, domain.RequestStatusFinished)
	logger.Info("chain finished", "tasks", len(ordered), "executed", out.Executed)
	return out, nil
}

// invoke создаёт экземпляр обработчика и вызывает его.
// Отсутствующий или несоздаваемый плагин превращается в результат ERROR.
func (e *Executor) invoke(ctx context.Context, req *domain.Request, task domain.Task) (plugin.TaskResult, error) {
	inst, err := e.tasks.NewTask(task.Code, task.Params)
	if err != nil {
		code := plugin.ErrorCodeInstance
		if errors.Is(err, plugin.ErrUnavailable) {
			code = plugin.ErrorCodeUnavailable
		}
		return plugin.Failure(code, err.Error()), err
	}
	return plugin.Execute(ctx, inst, req.Snapshot(), e.email), nil
}

func (e *Executor) transition(req *domain.Request, to domain.RequestStatus) {
	req.TransitionTo(to, e.now())
	e.metrics.Transition(string(to))
}

func (e *Executor) notify(ctx context.Context, t notify.EventType, a notify.Audience, req *domain.Request, task domain.Task) {
	ev := notify.ForRequest(t, a, req)
	ev.TaskLabel = taskLabel(task)
	if err := e.notifier.Notify(ctx, ev); err != nil && !errors.Is(err, notify.ErrDisabled) {
		e.logger.Warn("notification failed", "type", t, "request_id", req.ID, "error", err)
	}
}

func taskLabel(t domain.Task) string {
	if t.Label != "" {
		return t.Label
	}
	return t.Code
}

// historyStatus отображает итог задачи в статус записи истории.
func historyStatus(s plugin.TaskStatus) domain.HistoryStatus {
	switch s {
	case plugin.TaskStatusSuccess:
		return domain.HistoryStatusFinished
	case plugin.TaskStatusStandby:
		return domain.HistoryStatusStandby
	default:
		return domain.HistoryStatusError
	}
}
