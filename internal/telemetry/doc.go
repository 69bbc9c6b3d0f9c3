// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog (stdout + опционально файл через slog-multi)
//   - metrics.go — Prometheus метрики заданий, переходов, реестра и уведомлений
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
