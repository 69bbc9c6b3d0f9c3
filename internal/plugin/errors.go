package plugin

import "errors"

// Ошибки плагинов.
var (
	// ErrInstantiation — реализация не смогла создать экземпляр.
	// При обнаружении такая реализация логируется и пропускается.
	ErrInstantiation = errors.New("plugin instantiation failed")

	// ErrUnavailable — плагин с указанным кодом отсутствует в реестре.
	ErrUnavailable = errors.New("plugin unavailable")

	// ErrExecution — вызов плагина завершился паникой или вернул некорректный результат.
	ErrExecution = errors.New("plugin execution failed")

	// ErrABIMismatch — динамический плагин собран под другую версию ABI.
	ErrABIMismatch = errors.New("plugin ABI version mismatch")

	// ErrInvalidSource — источник плагинов не может быть загружен.
	ErrInvalidSource = errors.New("invalid plugin source")
)

// Коды ошибок, которые движок записывает в запрос и историю.
const (
	ErrorCodeUnavailable = "PLUGIN_UNAVAILABLE"
	ErrorCodeExecution   = "PLUGIN_EXECUTION"
	ErrorCodeInstance    = "PLUGIN_INSTANTIATION"
)
