package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel разбирает имя уровня: DEBUG, INFO, WARN, ERROR.
// Неизвестное значение — INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер с уровнем level.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
//
// Если задан LOG_FILE, записи дополнительно пишутся в файл в JSON.
// Возвращаемая функция закрывает файл.
func SetupLogger(levelName string) (*slog.Logger, func() error) {
	level := ParseLevel(levelName)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	cleanup := func() error { return nil }

	if path := os.Getenv("LOG_FILE"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.New(handler).Error("failed to open log file, using stdout only", "file", path, "error", err)
		} else {
			handler = slogmulti.Fanout(handler, slog.NewJSONHandler(file, opts))
			cleanup = file.Close
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, cleanup
}

// NewLogger создаёт логгер с выводом в несколько writer'ов (текст и JSON).
// Используется в тестах и CLI.
func NewLogger(text, json io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, opts),
		slog.NewJSONHandler(json, opts),
	))
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRequestID возвращает логгер с добавленным request_id.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithConnectorID возвращает логгер с добавленным connector_id.
func WithConnectorID(logger *slog.Logger, connectorID string) *slog.Logger {
	return logger.With("connector_id", connectorID)
}

// WithJob возвращает логгер с добавленным видом задания.
func WithJob(logger *slog.Logger, kind string) *slog.Logger {
	return logger.With("job", kind)
}
