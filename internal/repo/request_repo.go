package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Extract/internal/domain"
)

// DefaultListLimit — размер страницы списка запросов по умолчанию.
const DefaultListLimit = 50

// RequestRepo — репозиторий requests.
type RequestRepo struct {
	pool *pgxpool.Pool
}

// NewRequestRepo создаёт новый RequestRepo.
func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, connector_id, process_id, order_label, order_guid, product_label, product_guid,
	client, client_guid, organism, tiers, perimeter, surface, folder_in, folder_out, external_url,
	parameters, remark, rejected, status, task_index, message, error_code, match_attempts,
	claimed_by, claimed_at, started_at, ended_at, created_at, updated_at`

// CreateRequest сохраняет импортированный запрос.
// Повтор (connector, order_guid, product_guid) возвращает ErrAlreadyExists.
func (r *RequestRepo) CreateRequest(ctx context.Context, req *domain.Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	params, err := MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`
	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.ConnectorID,
		nullUUID(req.ProcessID),
		req.OrderLabel,
		req.OrderGUID,
		req.ProductLabel,
		req.ProductGUID,
		req.Client,
		req.ClientGUID,
		req.Organism,
		req.Tiers,
		req.Perimeter,
		req.Surface,
		req.FolderIn,
		req.FolderOut,
		req.ExternalURL,
		params,
		req.Remark,
		req.Rejected,
		req.Status,
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		nullUUID(req.ClaimedBy),
		req.ClaimedAt,
		req.StartedAt,
		req.EndedAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", translate(err))
	}
	return nil
}

// GetRequest возвращает запрос по ID.
func (r *RequestRepo) GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	return scanRequest(r.pool.QueryRow(ctx, query, id))
}

// ListRequests возвращает запросы с фильтрацией, новые первыми.
func (r *RequestRepo) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE ($1::uuid IS NULL OR connector_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, nullUUID(filter.ConnectorID), status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// ListEligible возвращает незахваченные запросы в статусе status, старые первыми.
func (r *RequestRepo) ListEligible(ctx context.Context, status domain.RequestStatus, staleBefore time.Time, limit int) ([]domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = $1
		  AND (claimed_by IS NULL OR claimed_at < $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, status, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible requests: %w", err)
	}
	return collectRequests(rows)
}

// UpdateRequest сохраняет изменяемые поля запроса при статусе expected.
func (r *RequestRepo) UpdateRequest(ctx context.Context, req *domain.Request, expected domain.RequestStatus) error {
	params, err := MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		UPDATE requests
		SET process_id = $3, folder_out = $4, parameters = $5, remark = $6, rejected = $7,
		    status = $8, task_index = $9, message = $10, error_code = $11, match_attempts = $12,
		    started_at = $13, ended_at = $14, updated_at = $15
		WHERE id = $1 AND status = $2 AND claimed_by IS NULL
	`
	result, err := r.pool.Exec(ctx, query,
		req.ID,
		expected,
		nullUUID(req.ProcessID),
		req.FolderOut,
		params,
		req.Remark,
		req.Rejected,
		req.Status,
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		req.StartedAt,
		req.EndedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, req.ID, ErrInvalidState)
	}
	return nil
}

// ClaimRequest захватывает запрос. Проигравший получает ErrInvalidState.
func (r *RequestRepo) ClaimRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, token uuid.UUID, now, staleBefore time.Time) (*domain.Request, error) {
	query := `
		UPDATE requests
		SET claimed_by = $3, claimed_at = $4
		WHERE id = $1 AND status = $2
		  AND (claimed_by IS NULL OR claimed_at < $5)
		RETURNING ` + requestColumns
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, status, token, now, staleBefore))
	if errors.Is(err, ErrNotFound) {
		return nil, r.missingOr(ctx, id, ErrInvalidState)
	}
	return req, err
}

// SaveClaimed сохраняет запрос и снимает аренду token.
func (r *RequestRepo) SaveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID) error {
	if err := r.saveClaimed(ctx, req, token, "claimed_by = NULL, claimed_at = NULL", nil); err != nil {
		return err
	}
	req.ClaimedBy = nil
	req.ClaimedAt = nil
	return nil
}

// SaveProgress сохраняет запрос без снятия аренды и продлевает её до now.
func (r *RequestRepo) SaveProgress(ctx context.Context, req *domain.Request, token uuid.UUID, now time.Time) error {
	if err := r.saveClaimed(ctx, req, token, "claimed_at = $16", now); err != nil {
		return err
	}
	req.ClaimedBy = &token
	req.ClaimedAt = &now
	return nil
}

// saveClaimed обновляет изменяемые поля запроса при аренде token.
// lease задаёт новые значения колонок аренды; claimedAt передаётся как $16.
func (r *RequestRepo) saveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID, lease string, claimedAt any) error {
	params, err := MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		UPDATE requests
		SET process_id = $3, folder_out = $4, parameters = $5, remark = $6, rejected = $7,
		    status = $8, task_index = $9, message = $10, error_code = $11, match_attempts = $12,
		    started_at = $13, ended_at = $14, updated_at = $15,
		    ` + lease + `
		WHERE id = $1 AND claimed_by = $2
	`
	args := []any{
		req.ID,
		token,
		nullUUID(req.ProcessID),
		req.FolderOut,
		params,
		req.Remark,
		req.Rejected,
		req.Status,
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		req.StartedAt,
		req.EndedAt,
		req.UpdatedAt,
	}
	if claimedAt != nil {
		args = append(args, claimedAt)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save claimed request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, req.ID, ErrInvalidState)
	}
	return nil
}

// RenewClaim продлевает аренду token до now.
func (r *RequestRepo) RenewClaim(ctx context.Context, id, token uuid.UUID, now time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE requests SET claimed_at = $3 WHERE id = $1 AND claimed_by = $2`,
		id, token, now,
	)
	if err != nil {
		return fmt.Errorf("renew claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, id, ErrInvalidState)
	}
	return nil
}

// ReleaseClaim снимает аренду token без изменения запроса.
func (r *RequestRepo) ReleaseClaim(ctx context.Context, id, token uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE requests SET claimed_by = NULL, claimed_at = NULL WHERE id = $1 AND claimed_by = $2`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, id, ErrInvalidState)
	}
	return nil
}

// missingOr возвращает ErrNotFound, если запроса нет, иначе fallback.
func (r *RequestRepo) missingOr(ctx context.Context, id uuid.UUID, fallback error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fallback
}

func collectRequests(rows pgx.Rows) ([]domain.Request, error) {
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// scanRequest сканирует одну строку в Request.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	var params []byte

	err := row.Scan(
		&req.ID,
		&req.ConnectorID,
		&req.ProcessID,
		&req.OrderLabel,
		&req.OrderGUID,
		&req.ProductLabel,
		&req.ProductGUID,
		&req.Client,
		&req.ClientGUID,
		&req.Organism,
		&req.Tiers,
		&req.Perimeter,
		&req.Surface,
		&req.FolderIn,
		&req.FolderOut,
		&req.ExternalURL,
		&params,
		&req.Remark,
		&req.Rejected,
		&req.Status,
		&req.TaskIndex,
		&req.Message,
		&req.ErrorCode,
		&req.MatchAttempts,
		&req.ClaimedBy,
		&req.ClaimedAt,
		&req.StartedAt,
		&req.EndedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	if req.Parameters, err = UnmarshalParams(params); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &req, nil
}
