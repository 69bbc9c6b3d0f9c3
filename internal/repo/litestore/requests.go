package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/repo"
)

const requestColumns = `id, connector_id, process_id, order_label, order_guid, product_label, product_guid,
	client, client_guid, organism, tiers, perimeter, surface, folder_in, folder_out, external_url,
	parameters, remark, rejected, status, task_index, message, error_code, match_attempts,
	claimed_by, claimed_at, started_at, ended_at, created_at, updated_at`

// CreateRequest сохраняет импортированный запрос.
func (s *Store) CreateRequest(ctx context.Context, req *domain.Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now().UTC()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	params, err := repo.MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
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
		string(params),
		req.Remark,
		req.Rejected,
		string(req.Status),
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		nullUUID(req.ClaimedBy),
		nullTime(req.ClaimedAt),
		nullTime(req.StartedAt),
		nullTime(req.EndedAt),
		formatTime(req.CreatedAt),
		formatTime(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", translate(err))
	}
	return nil
}

// GetRequest возвращает запрос по ID.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

// ListRequests возвращает запросы с фильтрацией, новые первыми.
func (s *Store) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = repo.DefaultListLimit
	}

	var conditions []string
	var args []any
	if filter.ConnectorID != nil {
		conditions = append(conditions, "connector_id = ?")
		args = append(args, filter.ConnectorID.String())
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// ListEligible возвращает незахваченные запросы в статусе status, старые первыми.
func (s *Store) ListEligible(ctx context.Context, status domain.RequestStatus, staleBefore time.Time, limit int) ([]domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = ?
		  AND (claimed_by IS NULL OR claimed_at < ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, string(status), formatTime(staleBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible requests: %w", err)
	}
	return collectRequests(rows)
}

// UpdateRequest сохраняет изменяемые поля запроса при статусе expected.
func (s *Store) UpdateRequest(ctx context.Context, req *domain.Request, expected domain.RequestStatus) error {
	params, err := repo.MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET process_id = ?, folder_out = ?, parameters = ?, remark = ?, rejected = ?,
		    status = ?, task_index = ?, message = ?, error_code = ?, match_attempts = ?,
		    started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND claimed_by IS NULL
	`,
		nullUUID(req.ProcessID),
		req.FolderOut,
		string(params),
		req.Remark,
		req.Rejected,
		string(req.Status),
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		nullTime(req.StartedAt),
		nullTime(req.EndedAt),
		formatTime(req.UpdatedAt),
		req.ID,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.missingOr(ctx, req.ID, repo.ErrInvalidState)
	}
	return nil
}

// ClaimRequest захватывает запрос. Проигравший получает repo.ErrInvalidState.
func (s *Store) ClaimRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, token uuid.UUID, now, staleBefore time.Time) (*domain.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE requests
		SET claimed_by = ?, claimed_at = ?
		WHERE id = ? AND status = ?
		  AND (claimed_by IS NULL OR claimed_at < ?)
		RETURNING `+requestColumns,
		token, formatTime(now), id, string(status), formatTime(staleBefore),
	)
	req, err := scanRequest(row)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, s.missingOr(ctx, id, repo.ErrInvalidState)
	}
	return req, err
}

// SaveClaimed сохраняет запрос и снимает аренду token.
func (s *Store) SaveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID) error {
	if err := s.saveClaimed(ctx, req, token, "claimed_by = NULL, claimed_at = NULL", nil); err != nil {
		return err
	}
	req.ClaimedBy = nil
	req.ClaimedAt = nil
	return nil
}

// SaveProgress сохраняет запрос без снятия аренды и продлевает её до now.
func (s *Store) SaveProgress(ctx context.Context, req *domain.Request, token uuid.UUID, now time.Time) error {
	if err := s.saveClaimed(ctx, req, token, "claimed_at = ?", formatTime(now)); err != nil {
		return err
	}
	req.ClaimedBy = &token
	req.ClaimedAt = &now
	return nil
}

// saveClaimed обновляет изменяемые поля запроса при аренде token.
// lease задаёт новые значения колонок аренды с не более чем одним параметром claimedAt.
func (s *Store) saveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID, lease string, claimedAt any) error {
	params, err := repo.MarshalParams(req.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	args := []any{
		nullUUID(req.ProcessID),
		req.FolderOut,
		string(params),
		req.Remark,
		req.Rejected,
		string(req.Status),
		req.TaskIndex,
		req.Message,
		req.ErrorCode,
		req.MatchAttempts,
		nullTime(req.StartedAt),
		nullTime(req.EndedAt),
		formatTime(req.UpdatedAt),
	}
	if claimedAt != nil {
		args = append(args, claimedAt)
	}
	args = append(args, req.ID, token)

	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET process_id = ?, folder_out = ?, parameters = ?, remark = ?, rejected = ?,
		    status = ?, task_index = ?, message = ?, error_code = ?, match_attempts = ?,
		    started_at = ?, ended_at = ?, updated_at = ?,
		    `+lease+`
		WHERE id = ? AND claimed_by = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("save claimed request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.missingOr(ctx, req.ID, repo.ErrInvalidState)
	}
	return nil
}

// RenewClaim продлевает аренду token до now.
func (s *Store) RenewClaim(ctx context.Context, id, token uuid.UUID, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE requests SET claimed_at = ? WHERE id = ? AND claimed_by = ?`,
		formatTime(now), id, token,
	)
	if err != nil {
		return fmt.Errorf("renew claim: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.missingOr(ctx, id, repo.ErrInvalidState)
	}
	return nil
}

// ReleaseClaim снимает аренду token без изменения запроса.
func (s *Store) ReleaseClaim(ctx context.Context, id, token uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE requests SET claimed_by = NULL, claimed_at = NULL WHERE id = ? AND claimed_by = ?`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return s.missingOr(ctx, id, repo.ErrInvalidState)
	}
	return nil
}

func (s *Store) missingOr(ctx context.Context, id uuid.UUID, fallback error) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}
	return fallback
}

func collectRequests(rows *sql.Rows) ([]domain.Request, error) {
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

func scanRequest(row scanner) (*domain.Request, error) {
	var req domain.Request
	var params, createdAt, updatedAt string
	var claimedAt, startedAt, endedAt sql.NullString

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
		&claimedAt,
		&startedAt,
		&endedAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if req.Parameters, err = repo.UnmarshalParams([]byte(params)); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if req.ClaimedAt, err = parseNullTime(claimedAt); err != nil {
		return nil, fmt.Errorf("parse claimed_at: %w", err)
	}
	if req.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if req.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if req.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &req, nil
}
