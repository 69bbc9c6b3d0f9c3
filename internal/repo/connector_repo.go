package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Extract/internal/domain"
)

// ConnectorRepo — репозиторий connectors.
type ConnectorRepo struct {
	pool *pgxpool.Pool
}

// NewConnectorRepo создаёт новый ConnectorRepo.
func NewConnectorRepo(pool *pgxpool.Pool) *ConnectorRepo {
	return &ConnectorRepo{pool: pool}
}

const connectorColumns = `id, code, label, params, active, import_interval_sec,
	last_import_at, last_import_message, import_error_count, created_at`

// CreateConnector создаёт connector.
func (r *ConnectorRepo) CreateConnector(ctx context.Context, c *domain.Connector) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	params, err := MarshalParams(c.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO connectors (id, code, label, params, active, import_interval_sec, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Label,
		params,
		c.Active,
		c.ImportIntervalSec,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert connector: %w", translate(err))
	}
	return nil
}

// GetConnector возвращает connector по ID.
func (r *ConnectorRepo) GetConnector(ctx context.Context, id uuid.UUID) (*domain.Connector, error) {
	query := `SELECT ` + connectorColumns + ` FROM connectors WHERE id = $1`
	return scanConnector(r.pool.QueryRow(ctx, query, id))
}

// ListConnectors возвращает connectors, упорядоченные по времени создания.
func (r *ConnectorRepo) ListConnectors(ctx context.Context, activeOnly bool) ([]domain.Connector, error) {
	query := `
		SELECT ` + connectorColumns + `
		FROM connectors
		WHERE (NOT $1 OR active)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, activeOnly)
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

// RecordImport фиксирует результат импорта. Ошибка увеличивает счётчик
// неудач подряд, успех его обнуляет.
func (r *ConnectorRepo) RecordImport(ctx context.Context, id uuid.UUID, at time.Time, message string, failed bool) error {
	query := `
		UPDATE connectors
		SET last_import_at = $2,
		    last_import_message = $3,
		    import_error_count = CASE WHEN $4 THEN import_error_count + 1 ELSE 0 END
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, at, message, failed)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanConnector сканирует одну строку в Connector.
func scanConnector(row pgx.Row) (*domain.Connector, error) {
	var c domain.Connector
	var params []byte

	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Label,
		&params,
		&c.Active,
		&c.ImportIntervalSec,
		&c.LastImportAt,
		&c.LastImportMessage,
		&c.ImportErrorCount,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connector: %w", err)
	}
	if c.Params, err = UnmarshalParams(params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &c, nil
}

// --- Helpers ---

// MarshalParams сериализует map параметров; nil хранится как {}.
func MarshalParams(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// UnmarshalParams разбирает map параметров; пустой объект даёт nil.
func UnmarshalParams(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
