package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Action — действие оператора над остановленным запросом.
type Action string

const (
	ActionResume Action = "resume"
	ActionRetry  Action = "retry"
	ActionSkip   Action = "skip"
	ActionReject Action = "reject"
)

// ParseAction проверяет код действия.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionResume, ActionRetry, ActionSkip, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrActionNotAllowed, s)
	}
}

// allowedFrom — статусы, из которых допустимо действие.
var allowedFrom = map[Action][]domain.RequestStatus{
	ActionResume: {domain.RequestStatusStandby},
	ActionRetry:  {domain.RequestStatusError},
	ActionSkip:   {domain.RequestStatusStandby, domain.RequestStatusError},
	ActionReject: {domain.RequestStatusStandby, domain.RequestStatusError},
}

// Actions выполняет действия оператора. Каждое действие — условное
// обновление при ожидаемом статусе и одна запись истории.
type Actions struct {
	store   repo.Store
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewActions создаёт Actions.
func NewActions(store repo.Store, metrics *telemetry.Metrics, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "actions"),
		now:     time.Now,
	}
}

// Apply выполняет действие a над запросом id от имени actor.
// remark используется только для reject.
func (a *Actions) Apply(ctx context.Context, id uuid.UUID, action Action, actor, remark string) (*domain.Request, error) {
	req, err := a.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == "" {
		actor = domain.SystemActor
	}

	expected := req.Status
	allowed, ok := allowedFrom[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrActionNotAllowed, action)
	}
	if !slices.Contains(allowed, expected) {
		return nil, fmt.Errorf("%w: %s from %s", ErrActionNotAllowed, action, expected)
	}
	if action != ActionReject && req.ProcessID == nil {
		return nil, ErrNoProcess
	}

	started := a.now()
	status := domain.HistoryStatusFinished
	label := domain.HistoryLabelResume

	switch action {
	case ActionResume:
		// TaskIndex уже указывает на задачу после ожидающей.
		req.Message = "resumed by " + actor
	case ActionRetry:
		label = domain.HistoryLabelRetry
		req.Message = "retried by " + actor
	case ActionSkip:
		label = domain.HistoryLabelSkip
		status = domain.HistoryStatusSkipped
		if expected == domain.RequestStatusError {
			req.TaskIndex++
		}
		req.Message = "task skipped by " + actor
	case ActionReject:
		label = domain.HistoryLabelReject
		req.Rejected = true
		if remark != "" {
			req.Remark = remark
		}
		req.Message = "rejected by " + actor
	}
	req.ErrorCode = ""

	to := domain.RequestStatusRunning
	if action == ActionReject {
		to = domain.RequestStatusRejected
	}
	req.TransitionTo(to, started)

	if err := a.store.UpdateRequest(ctx, req, expected); err != nil {
		return nil, err
	}
	a.metrics.Transition(string(to))

	ended := a.now()
	rec := &domain.HistoryRecord{
		RequestID: req.ID,
		TaskLabel: label,
		Status:    status,
		Message:   req.Message,
		Actor:     actor,
		StartedAt: started,
		EndedAt:   &ended,
	}
	if err := a.store.AppendHistory(ctx, rec); err != nil {
		return nil, persistErr("append history", err)
	}

	a.logger.Info("operator action applied",
		"request_id", req.ID,
		"action", action,
		"actor", actor,
		"status", req.Status,
		"task_index", req.TaskIndex,
	)
	return req, nil
}
