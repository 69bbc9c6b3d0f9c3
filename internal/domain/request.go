package domain

import (
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ошибки валидации импортированного заказа.
var (
	ErrMissingGeometry = errors.New("request has no perimeter geometry")
	ErrMissingOrderRef = errors.New("request has no order reference")
)

// Request — единица работы: один продукт одного заказа.
//
// Request создаётся Import-раннером и дальше изменяется только
// раннерами и действиями оператора через переходы состояния (status.go).
type Request struct {
	// ID — уникальный идентификатор request.
	ID uuid.UUID `json:"id"`

	// ConnectorID — connector, из которого импортирован запрос.
	ConnectorID uuid.UUID `json:"connector_id"`

	// ProcessID — назначенный процесс. Nil до успешного сопоставления.
	ProcessID *uuid.UUID `json:"process_id,omitempty"`

	// Описательные поля заказа и продукта.
	OrderLabel   string `json:"order_label"`
	OrderGUID    string `json:"order_guid"`
	ProductLabel string `json:"product_label"`
	ProductGUID  string `json:"product_guid"`
	Client       string `json:"client"`
	ClientGUID   string `json:"client_guid,omitempty"`
	Organism     string `json:"organism,omitempty"`
	Tiers        string `json:"tiers,omitempty"`

	// Perimeter — географический периметр заказа (WKT).
	Perimeter string `json:"perimeter"`

	// Surface — площадь периметра.
	Surface float64 `json:"surface,omitempty"`

	// FolderIn / FolderOut — каталоги входных и выходных данных.
	FolderIn  string `json:"folder_in,omitempty"`
	FolderOut string `json:"folder_out,omitempty"`

	// ExternalURL — ссылка на заказ в исходной системе.
	ExternalURL string `json:"external_url,omitempty"`

	// Parameters — произвольные параметры заказа.
	Parameters map[string]string `json:"parameters,omitempty"`

	// Remark — текст замечания (для клиента).
	Remark string `json:"remark,omitempty"`

	// Rejected — запрос отклонён задачей или оператором.
	Rejected bool `json:"rejected"`

	// Status — текущий статус жизненного цикла.
	Status RequestStatus `json:"status"`

	// TaskIndex — индекс задачи, с которой продолжится цепочка (0-based).
	TaskIndex int `json:"task_index"`

	// Message / ErrorCode — последний видимый пользователю результат.
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// MatchAttempts — число неудачных попыток сопоставления.
	MatchAttempts int `json:"match_attempts"`

	// ClaimedBy / ClaimedAt — аренда раннера. Nil, если запрос не захвачен.
	ClaimedBy *uuid.UUID `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// StartedAt — время первого перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// EndedAt — время завершения цепочки (FINISHED, REJECTED, EXPORTED).
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// CreatedAt — время импорта.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет доменные инварианты импортированного запроса.
// Запрос, не прошедший проверку, сохраняется как IMPORTFAIL.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.OrderGUID) == "" || strings.TrimSpace(r.ProductGUID) == "" {
		return ErrMissingOrderRef
	}
	if strings.TrimSpace(r.Perimeter) == "" {
		return ErrMissingGeometry
	}
	return nil
}

// TransitionTo переводит запрос в статус to.
// Недопустимый переход — ошибка программы: метод паникует.
func (r *Request) TransitionTo(to RequestStatus, now time.Time) {
	MustTransition(r.Status, to)
	r.Status = to
	r.UpdatedAt = now

	switch to {
	case RequestStatusRunning:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
		r.EndedAt = nil
	case RequestStatusFinished, RequestStatusRejected, RequestStatusExported:
		r.EndedAt = &now
	}
}

// Snapshot возвращает независимую копию запроса для передачи в плагин.
func (r *Request) Snapshot() Request {
	snap := *r
	snap.Parameters = maps.Clone(r.Parameters)
	if r.ProcessID != nil {
		id := *r.ProcessID
		snap.ProcessID = &id
	}
	return snap
}

// Apply сливает изменения, вернувшиеся из задачи.
// Возвращает true, если этим изменением запрос был отклонён.
func (r *Request) Apply(u RequestUpdate) (rejected bool) {
	if u.Remark != nil {
		r.Remark = *u.Remark
	}
	if u.FolderOut != nil {
		r.FolderOut = *u.FolderOut
	}
	if len(u.Parameters) > 0 {
		if r.Parameters == nil {
			r.Parameters = make(map[string]string, len(u.Parameters))
		}
		maps.Copy(r.Parameters, u.Parameters)
	}
	if u.Rejected != nil {
		rejected = *u.Rejected && !r.Rejected
		r.Rejected = *u.Rejected
	}
	return rejected
}

// RequestUpdate — изменения запроса, которые задача вправе вернуть.
// Nil-поле означает «не менять».
type RequestUpdate struct {
	Remark     *string           `json:"remark,omitempty"`
	Rejected   *bool             `json:"rejected,omitempty"`
	FolderOut  *string           `json:"folder_out,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RequestFilter — фильтр списка запросов.
type RequestFilter struct {
	ConnectorID *uuid.UUID
	Status      *RequestStatus
	Limit       int
	Offset      int
}
