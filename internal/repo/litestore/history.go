package litestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
)

// AppendHistory добавляет запись и присваивает ей следующий Step запроса.
func (s *Store) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO request_history (id, request_id, step, process_step, task_code, task_label,
		                             status, message, error_code, actor, started_at, ended_at)
		SELECT ?, ?, COALESCE(MAX(step), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM request_history
		WHERE request_id = ?
		RETURNING step
	`,
		rec.ID,
		rec.RequestID,
		rec.ProcessStep,
		rec.TaskCode,
		rec.TaskLabel,
		string(rec.Status),
		rec.Message,
		rec.ErrorCode,
		rec.Actor,
		formatTime(rec.StartedAt),
		nullTime(rec.EndedAt),
		rec.RequestID,
	).Scan(&rec.Step)
	if err != nil {
		return fmt.Errorf("append history: %w", translate(err))
	}
	return nil
}

// ListHistory возвращает журнал запроса в порядке (step, process_step).
func (s *Store) ListHistory(ctx context.Context, requestID uuid.UUID) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, step, process_step, task_code, task_label,
		       status, message, error_code, actor, started_at, ended_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY step ASC, process_step ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var startedAt string
		var endedAt sql.NullString
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
			&startedAt,
			&endedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if rec.EndedAt, err = parseNullTime(endedAt); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
