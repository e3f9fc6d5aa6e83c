package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/gotask/internal/model"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		seq           BIGSERIAL,
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL,
		status        TEXT NOT NULL,
		time_estimate INTEGER NOT NULL DEFAULT 0,
		due_date      TEXT NOT NULL DEFAULT '',
		is_complete   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key         TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

const pgTaskColumns = `id, name, description, status, time_estimate, due_date, is_complete`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

// Migrate creates the tables if they do not exist yet.
func (r *TaskRepo) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, name, description, status, time_estimate, due_date, is_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+pgTaskColumns,
		t.ID, t.Name, t.Description, t.Status, t.TimeEstimate, t.DueDate, t.IsComplete,
	)
	created, err := scanPgTask(row)
	return created, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id string) (model.Task, error) {
	t, err := scanPgTask(r.pool.QueryRow(ctx, `
		SELECT `+pgTaskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) List(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgTaskColumns+`
		FROM tasks
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) Update(ctx context.Context, id string, p model.Patch) (model.Task, error) {
	t, err := scanPgTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET name = $2, description = $3, time_estimate = $4, due_date = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+pgTaskColumns,
		id, p.Name, p.Description, p.TimeEstimate, p.DueDate,
	))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

// ToggleComplete flips is_complete in a single statement so concurrent
// toggles never read a stale value.
func (r *TaskRepo) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	t, err := scanPgTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET is_complete = NOT is_complete, updated_at = now()
		WHERE id = $1
		RETURNING `+pgTaskColumns,
		id,
	))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, resourceID)
	return err
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = $1
	`, key).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrorNotFound
	}
	return id, err
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return ErrorConflict
		}
	}
	return err
}

func scanPgTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &t.TimeEstimate, &t.DueDate, &t.IsComplete)
	return t, err
}
