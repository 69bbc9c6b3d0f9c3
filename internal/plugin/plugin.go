package plugin

import (
	"context"

	"github.com/shaiso/Extract/internal/domain"
)

// Descriptor — описание плагина для реестра и UI настройки.
type Descriptor interface {
	// Code — стабильный код плагина (ключ в реестре).
	Code() string
	Label() string
	Description() string
	Help() string
	Icon() string

	// ParamsSchema — JSON-массив {code, label, type, req, maxlength, ...}.
	ParamsSchema() string
}

// SourceConnector — контракт коннектора исходной системы.
//
// Реестр хранит «прототип», созданный с текущим языком; рабочий экземпляр
// с параметрами connector'а получается через NewInstance.
type SourceConnector interface {
	Descriptor

	// NewInstance создаёт экземпляр с языком и значениями параметров.
	NewInstance(language string, params map[string]string) (SourceConnector, error)

	// ImportCommands читает новые заказы из исходной системы.
	ImportCommands(ctx context.Context) ImportResult

	// ExportResult отправляет результат обработки запроса обратно.
	ExportResult(ctx context.Context, req ExportRequest) ExportResult
}

// TaskProcessor — контракт обработчика задачи.
type TaskProcessor interface {
	Descriptor

	// NewInstance создаёт экземпляр с языком и параметрами задачи.
	NewInstance(language string, params map[string]string) (TaskProcessor, error)

	// Execute выполняет задачу над снимком запроса.
	// Настройки уведомлений передаются по ссылке и не изменяются.
	Execute(ctx context.Context, req domain.Request, email *domain.EmailSettings) TaskResult
}

// Product — один продукт импортированного заказа.
type Product struct {
	OrderLabel   string            `json:"order_label"`
	OrderGUID    string            `json:"order_guid"`
	ProductLabel string            `json:"product_label"`
	ProductGUID  string            `json:"product_guid"`
	Client       string            `json:"client"`
	ClientGUID   string            `json:"client_guid,omitempty"`
	Organism     string            `json:"organism,omitempty"`
	Tiers        string            `json:"tiers,omitempty"`
	Perimeter    string            `json:"perimeter"`
	Surface      float64           `json:"surface,omitempty"`
	ExternalURL  string            `json:"external_url,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

// ImportResult — результат ImportCommands.
type ImportResult struct {
	Success      bool
	Products     []Product
	ErrorMessage string
}

// ExportRequest — данные для экспорта результата.
type ExportRequest struct {
	Request domain.Request
}

// ExportResult — результат ExportResult.
type ExportResult struct {
	Success       bool
	ResultCode    string
	ResultMessage string
	ErrorDetails  string
}

// TaskStatus — итог выполнения задачи.
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusStandby TaskStatus = "STANDBY"
	TaskStatusError   TaskStatus = "ERROR"
	TaskStatusNotRun  TaskStatus = "NOT_RUN"
)

// IsValid проверяет, что статус из известного набора.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusStandby, TaskStatusError, TaskStatusNotRun:
		return true
	default:
		return false
	}
}

// TaskResult — результат Execute.
type TaskResult struct {
	Status    TaskStatus
	ErrorCode string
	Message   string

	// Update — изменения запроса (замечание, флаг отклонения, параметры).
	Update domain.RequestUpdate
}

// Success возвращает успешный результат с сообщением.
func Success(message string) TaskResult {
	return TaskResult{Status: TaskStatusSuccess, Message: message}
}

// Failure возвращает результат с ошибкой.
func Failure(code, message string) TaskResult {
	return TaskResult{Status: TaskStatusError, ErrorCode: code, Message: message}
}

// Standby возвращает результат ожидания оператора.
func Standby(message string) TaskResult {
	return TaskResult{Status: TaskStatusStandby, Message: message}
}

// Info — сводка о плагине для API.
type Info struct {
	Code         string `json:"code"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	Help         string `json:"help"`
	Icon         string `json:"icon"`
	ParamsSchema string `json:"params_schema"`
}

// Describe собирает Info из Descriptor.
func Describe(d Descriptor) Info {
	return Info{
		Code:         d.Code(),
		Label:        d.Label(),
		Description:  d.Description(),
		Help:         d.Help(),
		Icon:         d.Icon(),
		ParamsSchema: d.ParamsSchema(),
	}
}
