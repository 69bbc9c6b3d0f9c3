package jobs

import "errors"

// Ошибки раннеров.
var (
	// ErrPersistence — сбой записи в хранилище. Прерывает пакет.
	ErrPersistence = errors.New("persistence failure")

	// ErrImportValidation — импортированный продукт не прошёл проверку (IMPORTFAIL).
	ErrImportValidation = errors.New("import validation failed")

	// ErrNoMatch — ни одно активное правило не подошло.
	ErrNoMatch = errors.New("no matching rule")

	// ErrNoProcess — запросу не назначен процесс (или процесс удалён).
	ErrNoProcess = errors.New("request has no process")

	// ErrActionNotAllowed — действие оператора недопустимо в текущем статусе.
	ErrActionNotAllowed = errors.New("action not allowed in current status")

	// ErrImportFailed — коннектор не смог вернуть заказы.
	ErrImportFailed = errors.New("connector import failed")
)

// Коды ошибок, которые раннеры записывают в запрос.
const (
	ErrorCodeImportValidation = "IMPORT_VALIDATION"
	ErrorCodeNoMatchingRule   = "NO_MATCHING_RULE"
	ErrorCodeNoProcess        = "NO_PROCESS"
	ErrorCodeExportFailed     = "EXPORT_FAILED"
)
