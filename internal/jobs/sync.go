package jobs

import (
	"context"
	"log/slog"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Discoverer перестраивает каталог плагинов (реализуется plugin.Registry).
type Discoverer interface {
	DiscoverConnectors(force bool) map[string]plugin.SourceConnector
	DiscoverTasks(force bool) map[string]plugin.TaskProcessor
}

// PluginSync — вспомогательное задание: пересканирует каталоги плагинов,
// подхватывая добавленные и удалённые *.so без перезапуска.
type PluginSync struct {
	registry Discoverer
	logger   *slog.Logger
}

// NewPluginSync создаёт задание пересканирования.
func NewPluginSync(registry Discoverer, logger *slog.Logger) *PluginSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginSync{
		registry: registry,
		logger:   telemetry.WithJob(logger, string(domain.JobPluginSync)),
	}
}

// Kind возвращает вид задания.
func (s *PluginSync) Kind() domain.JobKind {
	return domain.JobPluginSync
}

// Run принудительно перестраивает реестр. Одна перестройка обновляет
// оба вида плагинов, второй вызов читает уже свежий кэш.
func (s *PluginSync) Run(_ context.Context) error {
	connectors := s.registry.DiscoverConnectors(true)
	tasks := s.registry.DiscoverTasks(false)
	s.logger.Info("plugins rescanned", "connectors", len(connectors), "tasks", len(tasks))
	return nil
}
