package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepo — таблица настроек ключ/значение.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

// NewSettingsRepo создаёт новый SettingsRepo.
func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// GetSettings возвращает настройки, ключи которых начинаются с prefix.
func (r *SettingsRepo) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, value FROM settings WHERE starts_with(key, $1)`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// SetSetting записывает одну настройку.
func (r *SettingsRepo) SetSetting(ctx context.Context, key, value string) error {
	return r.SetSettings(ctx, map[string]string{key: value})
}

// SetSettings записывает несколько настроек в одной транзакции.
func (r *SettingsRepo) SetSettings(ctx context.Context, values map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for k, v := range values {
		_, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, k, v)
		if err != nil {
			return fmt.Errorf("set setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
