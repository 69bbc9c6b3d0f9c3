package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord — запись журнала обработки запроса.
//
// Записи только добавляются и никогда не изменяются. Для одного запроса
// они полностью упорядочены по (Step, ProcessStep).
type HistoryRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// RequestID — запрос, к которому относится запись.
	RequestID uuid.UUID `json:"request_id"`

	// Step — порядковый номер записи в журнале запроса (начиная с 1).
	Step int `json:"step"`

	// ProcessStep — позиция задачи в процессе (1-based); 0 для записей вне цепочки.
	ProcessStep int `json:"process_step"`

	// TaskCode / TaskLabel — плагин и имя шага.
	TaskCode  string `json:"task_code,omitempty"`
	TaskLabel string `json:"task_label"`

	// Status — итог шага.
	Status HistoryStatus `json:"status"`

	// Message / ErrorCode — сообщение и машинный код ошибки.
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Actor — кто выполнил шаг: "system" или имя оператора.
	Actor string `json:"actor"`

	// StartedAt / EndedAt — границы выполнения шага.
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SystemActor — исполнитель шагов, запущенных раннерами.
const SystemActor = "system"

// Метки записей вне цепочки задач.
const (
	HistoryLabelImport = "import"
	HistoryLabelMatch  = "match"
	HistoryLabelExport = "export"
	HistoryLabelResume = "resume"
	HistoryLabelRetry  = "retry"
	HistoryLabelSkip   = "skip"
	HistoryLabelReject = "reject"
)
