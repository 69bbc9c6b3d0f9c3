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

// ProcessRepo — репозиторий processes, их tasks и rules.
type ProcessRepo struct {
	pool *pgxpool.Pool
}

// NewProcessRepo создаёт новый ProcessRepo.
func NewProcessRepo(pool *pgxpool.Pool) *ProcessRepo {
	return &ProcessRepo{pool: pool}
}

// CreateProcess создаёт процесс вместе с задачами в одной транзакции.
func (r *ProcessRepo) CreateProcess(ctx context.Context, p *domain.Process) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO processes (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process: %w", translate(err))
	}

	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.ProcessID = p.ID
		params, err := MarshalParams(t.Params)
		if err != nil {
			return fmt.Errorf("marshal task params: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tasks (id, process_id, position, code, label, params)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, t.ID, t.ProcessID, t.Position, t.Code, t.Label, params)
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.Position, translate(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.SortTasks()
	return nil
}

// GetProcess возвращает процесс с задачами по возрастанию position.
func (r *ProcessRepo) GetProcess(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	var p domain.Process
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM processes WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}

	tasks, err := r.listTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Tasks = tasks
	return &p, nil
}

// ListProcesses возвращает все процессы с задачами.
func (r *ProcessRepo) ListProcesses(ctx context.Context) ([]domain.Process, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM processes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var processes []domain.Process
	for rows.Next() {
		var p domain.Process
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan process: %w", err)
		}
		processes = append(processes, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range processes {
		tasks, err := r.listTasks(ctx, processes[i].ID)
		if err != nil {
			return nil, err
		}
		processes[i].Tasks = tasks
	}
	return processes, nil
}

func (r *ProcessRepo) listTasks(ctx context.Context, processID uuid.UUID) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, process_id, position, code, label, params
		FROM tasks
		WHERE process_id = $1
		ORDER BY position ASC
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var params []byte
		if err := rows.Scan(&t.ID, &t.ProcessID, &t.Position, &t.Code, &t.Label, &params); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Params, err = UnmarshalParams(params); err != nil {
			return nil, fmt.Errorf("unmarshal task params: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateRule создаёт правило сопоставления.
func (r *ProcessRepo) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rules (id, connector_id, process_id, position, active, predicate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rule.ID, rule.ConnectorID, rule.ProcessID, rule.Position, rule.Active, rule.Predicate)
	if err != nil {
		return fmt.Errorf("insert rule: %w", translate(err))
	}
	return nil
}

// ListRules возвращает все правила connector'а по возрастанию position,
// включая неактивные: фильтрует их сопоставитель.
func (r *ProcessRepo) ListRules(ctx context.Context, connectorID uuid.UUID) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, connector_id, process_id, position, active, predicate
		FROM rules
		WHERE connector_id = $1
		ORDER BY position ASC
	`, connectorID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var rule domain.Rule
		if err := rows.Scan(&rule.ID, &rule.ConnectorID, &rule.ProcessID, &rule.Position, &rule.Active, &rule.Predicate); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
