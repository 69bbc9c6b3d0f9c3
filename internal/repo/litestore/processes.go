package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/repo"
)

// CreateProcess создаёт процесс вместе с задачами в одной транзакции.
func (s *Store) CreateProcess(ctx context.Context, p *domain.Process) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processes (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, formatTime(p.CreatedAt),
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
		params, err := repo.MarshalParams(t.Params)
		if err != nil {
			return fmt.Errorf("marshal task params: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, process_id, position, code, label, params)
			VALUES (?, ?, ?, ?, ?, ?)
		`, t.ID, t.ProcessID, t.Position, t.Code, t.Label, string(params))
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.Position, translate(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.SortTasks()
	return nil
}

// GetProcess возвращает процесс с задачами по возрастанию position.
func (s *Store) GetProcess(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	var p domain.Process
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM processes WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if p.Tasks, err = s.listTasks(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProcesses возвращает все процессы с задачами.
func (s *Store) ListProcesses(ctx context.Context) ([]domain.Process, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM processes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	// Курсор закрывается до запросов задач: соединение у базы одно.
	var processes []domain.Process
	for rows.Next() {
		var p domain.Process
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan process: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		processes = append(processes, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range processes {
		if processes[i].Tasks, err = s.listTasks(ctx, processes[i].ID); err != nil {
			return nil, err
		}
	}
	return processes, nil
}

func (s *Store) listTasks(ctx context.Context, processID uuid.UUID) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_id, position, code, label, params
		FROM tasks
		WHERE process_id = ?
		ORDER BY position ASC
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var params string
		if err := rows.Scan(&t.ID, &t.ProcessID, &t.Position, &t.Code, &t.Label, &params); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Params, err = repo.UnmarshalParams([]byte(params)); err != nil {
			return nil, fmt.Errorf("unmarshal task params: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateRule создаёт правило сопоставления.
func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, connector_id, process_id, position, active, predicate)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.ConnectorID, rule.ProcessID, rule.Position, rule.Active, rule.Predicate)
	if err != nil {
		return fmt.Errorf("insert rule: %w", translate(err))
	}
	return nil
}

// ListRules возвращает все правила connector'а по возрастанию position.
func (s *Store) ListRules(ctx context.Context, connectorID uuid.UUID) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connector_id, process_id, position, active, predicate
		FROM rules
		WHERE connector_id = ?
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
