package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
)

// Store — хранилище движка. Реализации: Postgres (pgx) и litestore (SQLite).
//
// Все изменения запроса условные: UPDATE проходит только при ожидаемом
// статусе или при совпадении токена аренды. Проигравший гонку получает
// ErrInvalidState и должен пропустить запрос.
type Store interface {
	// Connectors
	CreateConnector(ctx context.Context, c *domain.Connector) error
	GetConnector(ctx context.Context, id uuid.UUID) (*domain.Connector, error)
	ListConnectors(ctx context.Context, activeOnly bool) ([]domain.Connector, error)
	RecordImport(ctx context.Context, id uuid.UUID, at time.Time, message string, failed bool) error

	// Processes и rules
	CreateProcess(ctx context.Context, p *domain.Process) error
	GetProcess(ctx context.Context, id uuid.UUID) (*domain.Process, error)
	ListProcesses(ctx context.Context) ([]domain.Process, error)
	CreateRule(ctx context.Context, r *domain.Rule) error
	ListRules(ctx context.Context, connectorID uuid.UUID) ([]domain.Rule, error)

	// Requests
	CreateRequest(ctx context.Context, req *domain.Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error)

	// ListEligible возвращает запросы в статусе status без действующей аренды
	// (аренда старше staleBefore считается брошенной), старые первыми.
	ListEligible(ctx context.Context, status domain.RequestStatus, staleBefore time.Time, limit int) ([]domain.Request, error)

	// UpdateRequest сохраняет запрос, если его статус в БД равен expected
	// и он не захвачен раннером.
	UpdateRequest(ctx context.Context, req *domain.Request, expected domain.RequestStatus) error

	// ClaimRequest захватывает запрос токеном token и возвращает его свежую копию.
	ClaimRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, token uuid.UUID, now, staleBefore time.Time) (*domain.Request, error)

	// SaveClaimed сохраняет запрос и снимает аренду, если она всё ещё принадлежит token.
	SaveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID) error

	// SaveProgress сохраняет запрос, оставляя аренду за token и продлевая её до now.
	SaveProgress(ctx context.Context, req *domain.Request, token uuid.UUID, now time.Time) error

	// RenewClaim продлевает аренду token до now.
	RenewClaim(ctx context.Context, id, token uuid.UUID, now time.Time) error

	// ReleaseClaim снимает аренду без изменения запроса.
	ReleaseClaim(ctx context.Context, id, token uuid.UUID) error

	// History
	AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error
	ListHistory(ctx context.Context, requestID uuid.UUID) ([]domain.HistoryRecord, error)

	// Settings
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	SetSettings(ctx context.Context, values map[string]string) error

	Ping(ctx context.Context) error
	Close() error
}
