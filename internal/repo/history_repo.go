package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Extract/internal/domain"
)

// HistoryRepo — журнал обработки запросов (только добавление).
type HistoryRepo struct {
	pool *pgxpool.Pool
}

// NewHistoryRepo создаёт новый HistoryRepo.
func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// AppendHistory добавляет запись и присваивает ей следующий Step запроса.
// Уникальный индекс (request_id, step) не даёт двум писателям получить один номер.
func (r *HistoryRepo) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO request_history (id, request_id, step, process_step, task_code, task_label,
		                             status, message, error_code, actor, started_at, ended_at)
		SELECT $1::uuid, $2::uuid, COALESCE(MAX(step), 0) + 1, $3::int, $4::text, $5::text,
		       $6::text, $7::text, $8::text, $9::text, $10::timestamptz, $11::timestamptz
		FROM request_history
		WHERE request_id = $2
		RETURNING step
	`
	err := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.ProcessStep,
		rec.TaskCode,
		rec.TaskLabel,
		rec.Status,
		rec.Message,
		rec.ErrorCode,
		rec.Actor,
		rec.StartedAt,
		rec.EndedAt,
	).Scan(&rec.Step)
	if err != nil {
		return fmt.Errorf("append history: %w", translate(err))
	}
	return nil
}

// ListHistory возвращает журнал запроса в порядке (step, process_step).
func (r *HistoryRepo) ListHistory(ctx context.Context, requestID uuid.UUID) ([]domain.HistoryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, step, process_step, task_code, task_label,
		       status, message, error_code, actor, started_at, ended_at
		FROM request_history
		WHERE request_id = $1
		ORDER BY step ASC, process_step ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Step,
			&rec.ProcessStep,
			&rec.TaskCode,
			&rec.TaskLabel,
			&rec.Status,
			&rec.Message,
			&rec.ErrorCode,
			&rec.Actor,
			&rec.StartedAt,
			&rec.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
