package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/repo"
)

const connectorColumns = `id, code, label, params, active, import_interval_sec,
	last_import_at, last_import_message, import_error_count, created_at`

// CreateConnector создаёт connector.
func (s *Store) CreateConnector(ctx context.Context, c *domain.Connector) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	params, err := repo.MarshalParams(c.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connectors (id, code, label, params, active, import_interval_sec, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Code, c.Label, string(params), c.Active, c.ImportIntervalSec, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert connector: %w", translate(err))
	}
	return nil
}

// GetConnector возвращает connector по ID.
func (s *Store) GetConnector(ctx context.Context, id uuid.UUID) (*domain.Connector, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectorColumns+` FROM connectors WHERE id = ?`, id)
	return scanConnector(row)
}

// ListConnectors возвращает connectors по времени создания.
func (s *Store) ListConnectors(ctx context.Context, activeOnly bool) ([]domain.Connector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+connectorColumns+`
		FROM connectors
		WHERE (NOT ? OR active)
		ORDER BY created_at ASC, id ASC
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	var connectors []domain.Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, *c)
	}
	return connectors, rows.Err()
}

// RecordImport фиксирует результат импорта connector'а.
func (s *Store) RecordImport(ctx context.Context, id uuid.UUID, at time.Time, message string, failed bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE connectors
		SET last_import_at = ?,
		    last_import_message = ?,
		    import_error_count = CASE WHEN ? THEN import_error_count + 1 ELSE 0 END
		WHERE id = ?
	`, formatTime(at), message, failed, id)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanConnector(row scanner) (*domain.Connector, error) {
	var c domain.Connector
	var params, createdAt string
	var lastImport sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Label,
		&params,
		&c.Active,
		&c.ImportIntervalSec,
		&lastImport,
		&c.LastImportMessage,
		&c.ImportErrorCount,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connector: %w", err)
	}

	if c.Params, err = repo.UnmarshalParams([]byte(params)); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if c.LastImportAt, err = parseNullTime(lastImport); err != nil {
		return nil, fmt.Errorf("parse last_import_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}
