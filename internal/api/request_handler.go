package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/jobs"
	"github.com/shaiso/Extract/internal/mq"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ListRequests возвращает список запросов с фильтрацией.
// GET /api/v1/requests?connector_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RequestFilter{
		Limit:  parseIntParam(q.Get("limit"), defaultLimit),
		Offset: parseIntParam(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > maxLimit {
		filter.Limit = defaultLimit
	}
	filter.Offset = max(filter.Offset, 0)

	if s := q.Get("connector_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid connector_id")
			return
		}
		filter.ConnectorID = &id
	}

	if s := q.Get("status"); s != "" {
		status := domain.RequestStatus(strings.ToUpper(s))
		if !status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = &status
	}

	requests, err := h.store.ListRequests(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RequestResponse, len(requests))
	for i, req := range requests {
		result[i] = RequestFromDomain(req)
	}

	List(w, result, len(result))
}

// GetRequest возвращает запрос по ID.
// GET /api/v1/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid request id")
		return
	}

	req, err := h.store.GetRequest(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "request not found") {
		return
	}

	Success(w, RequestFromDomain(*req))
}

// ListRequestHistory возвращает историю запроса.
// GET /api/v1/requests/{id}/history
func (h *Handler) ListRequestHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid request id")
		return
	}

	// Проверяем, что запрос существует
	_, err = h.store.GetRequest(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "request not found") {
		return
	}

	records, err := h.store.ListHistory(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]HistoryResponse, len(records))
	for i, rec := range records {
		result[i] = HistoryFromDomain(rec)
	}

	List(w, result, len(result))
}

// ApplyAction выполняет resume/retry/skip/reject.
// POST /api/v1/requests/{id}/actions
func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid request id")
		return
	}

	var body ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	action, err := jobs.ParseAction(body.Action)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if body.Actor == "" {
		BadRequest(w, "actor is required")
		return
	}

	req, err := h.actions.Apply(r.Context(), id, action, body.Actor, body.Remark)
	if HandleRepoError(w, h.logger, err, "request not found") {
		return
	}

	// Запрос снова RUNNING: просим демон выполнить его, не дожидаясь тика.
	if req.Status == domain.RequestStatusRunning {
		h.publishTrigger(r.Context(), domain.JobExecute, "operator "+string(action), &req.ID)
	}

	Success(w, RequestFromDomain(*req))
}

// publishTrigger отправляет триггер; ошибка только логируется.
func (h *Handler) publishTrigger(ctx context.Context, kind domain.JobKind, reason string, requestID *uuid.UUID) bool {
	if h.trigger == nil {
		return false
	}
	err := h.trigger.PublishJobTrigger(ctx, mq.JobTriggerPayload{
		Kind:      string(kind),
		Reason:    reason,
		RequestID: requestID,
	})
	if err != nil {
		h.logger.Warn("failed to publish job trigger", "kind", kind, "error", err)
		return false
	}
	return true
}

// parseIntParam парсит query-параметр с дефолтным значением.
func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
