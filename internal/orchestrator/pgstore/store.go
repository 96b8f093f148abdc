// Package pgstore persists task runs in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"task-recipes/internal/common/database"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// Migrate applies the task_runs schema.
func Migrate(ctx context.Context, pg *database.PostgresClient, log goose.Logger) error {
	return pg.Migrate(ctx, Migrations, "migrations", log)
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PingContext(ctx context.Context) error
}

// Store implements orchestrator.RunStore.
type Store struct {
	db DBTX
}

var _ orchestrator.RunStore = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

const selectColumns = `id, task_key, name, parameters, cache_key, run_count, max_retries, state, created_at, updated_at`

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateTaskRun(ctx context.Context, run *orchestrator.TaskRun) error {
	state, err := json.Marshal(run.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
		INSERT INTO task_runs (id, task_key, name, parameters, cache_key, run_count, max_retries, state_type, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.TaskKey,
		run.Name,
		[]byte(params(run.Parameters)),
		run.CacheKey,
		run.RunCount,
		run.MaxRetries,
		string(run.State.Type),
		state,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) ReadTaskRun(ctx context.Context, id uuid.UUID) (*orchestrator.TaskRun, error) {
	query := `SELECT ` + selectColumns + ` FROM task_runs WHERE id = $1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orchestrator.ErrTaskRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task run %s: %w", id, err)
	}
	return run, nil
}

func (s *Store) ReadTaskRuns(ctx context.Context, filter orchestrator.TaskRunFilter) ([]*orchestrator.TaskRun, error) {
	query, args := buildFilterQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*orchestrator.TaskRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task runs: %w", err)
	}
	return runs, nil
}

// buildFilterQuery renders the filter as ANY($n) predicates.
func buildFilterQuery(filter orchestrator.TaskRunFilter) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.IDs) > 0 {
		ids := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ids[i] = id.String()
		}
		add("id = ANY($%d::uuid[])", pq.Array(ids))
	}
	if len(filter.StateTypes) > 0 {
		types := make([]string, len(filter.StateTypes))
		for i, t := range filter.StateTypes {
			types[i] = string(t)
		}
		add("state_type = ANY($%d)", pq.Array(types))
	}
	if len(filter.TaskKeys) > 0 {
		add("task_key = ANY($%d)", pq.Array(filter.TaskKeys))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM task_runs`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, filter.EffectiveLimit())
	fmt.Fprintf(&b, " ORDER BY created_at, id LIMIT $%d", len(args))
	return b.String(), args
}

func (s *Store) UpdateTaskRun(ctx context.Context, run *orchestrator.TaskRun) error {
	state, err := json.Marshal(run.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
		UPDATE task_runs
		SET name = $1, cache_key = $2, run_count = $3, max_retries = $4, state_type = $5, state = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		run.Name,
		run.CacheKey,
		run.RunCount,
		run.MaxRetries,
		string(run.State.Type),
		state,
		run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task run %s: %w", run.ID, err)
	}
	return requireRow(result)
}

func (s *Store) DeleteTaskRun(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task run %s: %w", id, err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return orchestrator.ErrTaskRunNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*orchestrator.TaskRun, error) {
	var (
		run        orchestrator.TaskRun
		parameters []byte
		state      []byte
	)
	err := row.Scan(
		&run.ID,
		&run.TaskKey,
		&run.Name,
		&parameters,
		&run.CacheKey,
		&run.RunCount,
		&run.MaxRetries,
		&state,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Parameters = json.RawMessage(parameters)
	if err := json.Unmarshal(state, &run.State); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", run.ID, err)
	}
	return &run, nil
}

func params(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage("{}")
	}
	return p
}
