package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/scheduler"
)

// Request DTOs

// RequestResponse — ответ с запросом.
type RequestResponse struct {
	ID            uuid.UUID         `json:"id"`
	ConnectorID   uuid.UUID         `json:"connector_id"`
	ProcessID     *uuid.UUID        `json:"process_id,omitempty"`
	OrderLabel    string            `json:"order_label"`
	ProductLabel  string            `json:"product_label"`
	Client        string            `json:"client"`
	Organism      string            `json:"organism,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Remark        string            `json:"remark,omitempty"`
	Rejected      bool              `json:"rejected"`
	Status        string            `json:"status"`
	TaskIndex     int               `json:"task_index"`
	Message       string            `json:"message,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	MatchAttempts int               `json:"match_attempts"`
	Claimed       bool              `json:"claimed"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RequestFromDomain конвертирует domain.Request в RequestResponse.
func RequestFromDomain(r domain.Request) RequestResponse {
	return RequestResponse{
		ID:            r.ID,
		ConnectorID:   r.ConnectorID,
		ProcessID:     r.ProcessID,
		OrderLabel:    r.OrderLabel,
		ProductLabel:  r.ProductLabel,
		Client:        r.Client,
		Organism:      r.Organism,
		Parameters:    r.Parameters,
		Remark:        r.Remark,
		Rejected:      r.Rejected,
		Status:        string(r.Status),
		TaskIndex:     r.TaskIndex,
		Message:       r.Message,
		ErrorCode:     r.ErrorCode,
		MatchAttempts: r.MatchAttempts,
		Claimed:       r.ClaimedBy != nil,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// HistoryResponse — запись истории запроса.
type HistoryResponse struct {
	Step        int        `json:"step"`
	ProcessStep int        `json:"process_step"`
	TaskCode    string     `json:"task_code,omitempty"`
	TaskLabel   string     `json:"task_label"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	Actor       string     `json:"actor"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// HistoryFromDomain конвертирует domain.HistoryRecord в HistoryResponse.
func HistoryFromDomain(h domain.HistoryRecord) HistoryResponse {
	return HistoryResponse{
		Step:        h.Step,
		ProcessStep: h.ProcessStep,
		TaskCode:    h.TaskCode,
		TaskLabel:   h.TaskLabel,
		Status:      string(h.Status),
		Message:     h.Message,
		ErrorCode:   h.ErrorCode,
		Actor:       h.Actor,
		StartedAt:   h.StartedAt,
		EndedAt:     h.EndedAt,
	}
}

// ActionRequest — действие оператора над запросом.
type ActionRequest struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Remark string `json:"remark,omitempty"`
}

// Catalog DTOs

// ConnectorResponse — ответ с connector'ом. Параметры не отдаются:
// в них хранятся учётные данные исходной системы.
type ConnectorResponse struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	Label             string     `json:"label"`
	Active            bool       `json:"active"`
	ImportIntervalSec int        `json:"import_interval_sec"`
	LastImportAt      *time.Time `json:"last_import_at,omitempty"`
	LastImportMessage string     `json:"last_import_message,omitempty"`
	ImportErrorCount  int        `json:"import_error_count"`
}

// ConnectorFromDomain конвертирует domain.Connector в ConnectorResponse.
func ConnectorFromDomain(c domain.Connector) ConnectorResponse {
	return ConnectorResponse{
		ID:                c.ID,
		Code:              c.Code,
		Label:             c.Label,
		Active:            c.Active,
		ImportIntervalSec: c.ImportIntervalSec,
		LastImportAt:      c.LastImportAt,
		LastImportMessage: c.LastImportMessage,
		ImportErrorCount:  c.ImportErrorCount,
	}
}

// PluginsResponse — каталог плагинов.
type PluginsResponse struct {
	Connectors []plugin.Info `json:"connectors"`
	Tasks      []plugin.Info `json:"tasks"`
}

// Schedule DTOs

// ScheduleResponse — расписание вида задания.
type ScheduleResponse struct {
	Kind    string             `json:"kind"`
	Mode    string             `json:"mode"`
	Windows []scheduler.Window `json:"ranges"`
}

// ScheduleFromDomain конвертирует расписание в ответ.
func ScheduleFromDomain(kind domain.JobKind, s scheduler.Schedule) ScheduleResponse {
	windows := s.Windows
	if windows == nil {
		windows = []scheduler.Window{}
	}
	return ScheduleResponse{
		Kind:    string(kind),
		Mode:    string(s.Mode),
		Windows: windows,
	}
}

// UpdateScheduleRequest — новое расписание вида задания.
type UpdateScheduleRequest struct {
	Mode    string             `json:"mode"`
	Windows []scheduler.Window `json:"ranges"`
}

// SyncResponse — настройки пересканирования плагинов.
type SyncResponse struct {
	Enabled     bool       `json:"enabled"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Cron        string     `json:"cron,omitempty"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

// UpdateSyncRequest — изменение настроек пересканирования.
type UpdateSyncRequest struct {
	Enabled     bool   `json:"enabled"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Cron        string `json:"cron,omitempty"`
}

// TriggerResponse — подтверждение ручного запуска.
type TriggerResponse struct {
	Kind   string `json:"kind"`
	Queued bool   `json:"queued"`
}
