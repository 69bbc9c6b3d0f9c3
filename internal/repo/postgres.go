package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres — Store поверх pgxpool.
type Postgres struct {
	*ConnectorRepo
	*ProcessRepo
	*RequestRepo
	*HistoryRepo
	*SettingsRepo

	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres собирает Store из репозиториев над одним пулом.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		ConnectorRepo: NewConnectorRepo(pool),
		ProcessRepo:   NewProcessRepo(pool),
		RequestRepo:   NewRequestRepo(pool),
		HistoryRepo:   NewHistoryRepo(pool),
		SettingsRepo:  NewSettingsRepo(pool),
		pool:          pool,
	}
}

// Pool возвращает пул соединений.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping проверяет соединение.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close закрывает пул.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// translate превращает ошибки ограничений Postgres в ошибки репозитория.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
