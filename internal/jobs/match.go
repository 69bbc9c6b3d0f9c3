package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/rules"
)

// Match назначает процессы запросам в статусе IMPORTED.
type Match struct {
	base
	matcher       *rules.Matcher
	escalateAfter int
}

// NewMatch создаёт раннер Match.
func NewMatch(cfg Config) *Match {
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = rules.NewMatcher(cfg.Logger)
	}
	return &Match{
		base:          newBase(domain.JobMatch, cfg),
		matcher:       matcher,
		escalateAfter: cfg.EscalateAfter,
	}
}

// Run сопоставляет пакет запросов. Запросы обрабатываются по одному;
// правила connector'а компилируются один раз за прогон.
func (r *Match) Run(ctx context.Context) error {
	now := r.now()
	requests, err := r.store.ListEligible(ctx, domain.RequestStatusImported, r.staleBefore(now), r.batchSize)
	if err != nil {
		return persistErr("list imported requests", err)
	}
	if len(requests) == 0 {
		return nil
	}

	ruleSets := make(map[uuid.UUID]*rules.RuleSet)
	ruleSet := func(ctx context.Context, connectorID uuid.UUID) (*rules.RuleSet, error) {
		if rs, ok := ruleSets[connectorID]; ok {
			return rs, nil
		}
		list, err := r.store.ListRules(ctx, connectorID)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		rs := r.matcher.Compile(list)
		ruleSets[connectorID] = rs
		return rs, nil
	}

	return forEach(ctx, &r.base, 1, requests, func(ctx context.Context, req domain.Request) error {
		rs, err := ruleSet(ctx, req.ConnectorID)
		if err != nil {
			return err
		}
		return r.matchOne(ctx, &req, rs)
	})
}

func (r *Match) matchOne(ctx context.Context, req *domain.Request, rs *rules.RuleSet) error {
	started := r.now()
	logger := r.logger.With("request_id", req.ID)

	rule, ok := rs.Match(req)
	if !ok {
		return r.unmatched(ctx, req, started)
	}

	processID := rule.ProcessID
	req.ProcessID = &processID
	req.TaskIndex = 0
	req.Message = fmt.Sprintf("matched rule %d", rule.Position)
	req.ErrorCode = ""
	r.transition(req, domain.RequestStatusRunning)

	if err := r.store.UpdateRequest(ctx, req, domain.RequestStatusImported); err != nil {
		if lost(err) {
			logger.Debug("request already matched elsewhere")
			r.metrics.JobItem(string(r.kind), "lost")
			return nil
		}
		return persistErr("update request", err)
	}
	if err := r.appendHistory(ctx, req, domain.HistoryLabelMatch, domain.HistoryStatusFinished, domain.SystemActor, started); err != nil {
		return err
	}

	r.metrics.JobItem(string(r.kind), "processed")
	logger.Info("request matched", "rule_position", rule.Position, "process_id", processID)
	return nil
}

// unmatched учитывает неудачную попытку. После escalateAfter попыток
// запрос уходит в ERROR с уведомлением администратора.
func (r *Match) unmatched(ctx context.Context, req *domain.Request, started time.Time) error {
	req.MatchAttempts++
	req.UpdatedAt = r.now()

	escalate := r.escalateAfter > 0 && req.MatchAttempts >= r.escalateAfter
	if escalate {
		req.ErrorCode = ErrorCodeNoMatchingRule
		req.Message = fmt.Sprintf("%v after %d attempts", ErrNoMatch, req.MatchAttempts)
		r.transition(req, domain.RequestStatusError)
	}

	if err := r.store.UpdateRequest(ctx, req, domain.RequestStatusImported); err != nil {
		if lost(err) {
			return nil
		}
		return persistErr("update request", err)
	}

	if !escalate {
		r.metrics.JobItem(string(r.kind), "unmatched")
		r.logger.Debug("no matching rule", "request_id", req.ID, "attempts", req.MatchAttempts)
		return nil
	}

	if err := r.appendHistory(ctx, req, domain.HistoryLabelMatch, domain.HistoryStatusError, domain.SystemActor, started); err != nil {
		return err
	}
	r.metrics.JobItem(string(r.kind), "escalated")
	r.logger.Warn("unmatched request escalated", "request_id", req.ID, "attempts", req.MatchAttempts)
	r.notify(ctx, notify.ForRequest(notify.EventUnmatched, notify.AudienceAdmin, req))
	return nil
}
