package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/scheduler"
)

// ListSchedules возвращает расписания всех видов заданий.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	values, err := h.store.GetSettings(r.Context(), "schedule.")
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	kinds := domain.RequestJobKinds()
	result := make([]ScheduleResponse, 0, len(kinds))
	for _, kind := range kinds {
		sched, err := scheduler.ParseSchedule(values, kind, h.defaultMode)
		if err != nil {
			// Повреждённое расписание не скрывает остальные.
			h.logger.Warn("stored schedule is invalid", "kind", kind, "error", err)
			sched = scheduler.Schedule{Mode: scheduler.ModeOff}
		}
		result = append(result, ScheduleFromDomain(kind, sched))
	}

	List(w, result, len(result))
}

// GetSchedule возвращает расписание одного вида задания.
// GET /api/v1/schedules/{kind}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.requestJobKind(w, r)
	if !ok {
		return
	}

	values, err := h.store.GetSettings(r.Context(), "schedule."+string(kind)+".")
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	sched, err := scheduler.ParseSchedule(values, kind, h.defaultMode)
	if err != nil {
		InvalidState(w, err.Error())
		return
	}

	Success(w, ScheduleFromDomain(kind, sched))
}

// UpdateSchedule проверяет и сохраняет расписание.
// PUT /api/v1/schedules/{kind}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.requestJobKind(w, r)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sched := scheduler.Schedule{Mode: scheduler.Mode(req.Mode), Windows: req.Windows}
	values, err := scheduler.EncodeSchedule(kind, sched)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.store.SetSettings(r.Context(), values); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	sched.Mode, _ = scheduler.ParseMode(req.Mode)
	h.logger.Info("schedule updated", "kind", kind, "mode", sched.Mode, "ranges", len(sched.Windows))
	Success(w, ScheduleFromDomain(kind, sched))
}

// GetSync возвращает настройки пересканирования плагинов.
// GET /api/v1/sync
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	values, err := h.store.GetSettings(r.Context(), "sync.")
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	settings, err := scheduler.ParseSyncSettings(values)
	if err != nil {
		InvalidState(w, err.Error())
		return
	}

	Success(w, h.syncResponse(settings))
}

// UpdateSync сохраняет настройки пересканирования. Время последнего
// запуска не меняется.
// PUT /api/v1/sync
func (h *Handler) UpdateSync(w http.ResponseWriter, r *http.Request) {
	var req UpdateSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.IntervalSec < 0 {
		BadRequest(w, "interval_sec must not be negative")
		return
	}
	if req.Cron != "" {
		if err := scheduler.ValidateCronExpr(req.Cron); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	values := map[string]string{
		domain.SettingSyncEnabled:  strconv.FormatBool(req.Enabled),
		domain.SettingSyncInterval: strconv.Itoa(req.IntervalSec),
		domain.SettingSyncCron:     req.Cron,
	}
	if err := h.store.SetSettings(r.Context(), values); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	stored, err := h.store.GetSettings(r.Context(), "sync.")
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	settings, err := scheduler.ParseSyncSettings(stored)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, h.syncResponse(settings))
}

// TriggerJob ставит вид задания в очередь на немедленный запуск.
// Окна расписания для ручного запуска не проверяются.
// POST /api/v1/jobs/{kind}/trigger
func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseJobKind(r.PathValue("kind"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if h.trigger == nil {
		Unavailable(w, "job triggers require a message broker")
		return
	}

	if !h.publishTrigger(r.Context(), kind, "manual", nil) {
		Unavailable(w, "failed to queue job trigger")
		return
	}

	Accepted(w, TriggerResponse{Kind: string(kind), Queued: true})
}

func (h *Handler) syncResponse(s scheduler.SyncSettings) SyncResponse {
	resp := SyncResponse{
		Enabled:     s.Enabled,
		IntervalSec: s.IntervalSec,
		Cron:        s.Cron,
		LastRun:     s.LastRun,
	}
	if next, ok := scheduler.NextSyncRun(s, h.now()); ok {
		next = next.Truncate(time.Second)
		resp.NextRun = &next
	}
	return resp
}

// requestJobKind разбирает {kind}: расписания есть только у заданий конвейера.
func (h *Handler) requestJobKind(w http.ResponseWriter, r *http.Request) (domain.JobKind, bool) {
	kind, err := domain.ParseJobKind(r.PathValue("kind"))
	if err != nil || kind == domain.JobPluginSync {
		BadRequest(w, "invalid job kind")
		return "", false
	}
	return kind, true
}
