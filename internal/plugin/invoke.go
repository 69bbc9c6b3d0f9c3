package plugin

import (
	"context"
	"fmt"

	"github.com/shaiso/Extract/internal/domain"
)

// Execute вызывает обработчик задачи, превращая панику или результат
// неизвестной формы в статус ERROR с кодом ErrorCodeExecution.
func Execute(ctx context.Context, t TaskProcessor, req domain.Request, email *domain.EmailSettings) (res TaskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Failure(ErrorCodeExecution, fmt.Sprintf("%v: task %s panicked: %v", ErrExecution, t.Code(), rec))
		}
	}()

	res = t.Execute(ctx, req, email)
	if !res.Status.IsValid() {
		return Failure(ErrorCodeExecution, fmt.Sprintf("%v: task %s returned status %q", ErrExecution, t.Code(), res.Status))
	}
	return res
}

// Import вызывает ImportCommands с защитой от паники.
func Import(ctx context.Context, c SourceConnector) (res ImportResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = ImportResult{ErrorMessage: fmt.Sprintf("%v: connector %s panicked: %v", ErrExecution, c.Code(), rec)}
		}
	}()
	return c.ImportCommands(ctx)
}

// Export вызывает ExportResult с защитой от паники.
func Export(ctx context.Context, c SourceConnector, req ExportRequest) (res ExportResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = ExportResult{
				ResultCode:   ErrorCodeExecution,
				ErrorDetails: fmt.Sprintf("%v: connector %s panicked: %v", ErrExecution, c.Code(), rec),
			}
		}
	}()
	return c.ExportResult(ctx, req)
}
