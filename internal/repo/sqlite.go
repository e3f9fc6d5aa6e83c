package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BuzzLyutic/gotask/internal/model"
)

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL,
		status        TEXT NOT NULL,
		time_estimate INTEGER NOT NULL DEFAULT 0,
		due_date      TEXT NOT NULL DEFAULT '',
		is_complete   INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key         TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

const sqliteTaskColumns = `id, name, description, status, time_estimate, due_date, is_complete`

// SQLiteRepo stores tasks in a single SQLite file. It is the default backend
// for local runs and tests.
type SQLiteRepo struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to ":memory:" is its own database
	db.SetMaxOpenConns(1)

	r := &SQLiteRepo{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	created, err := scanSQLiteTask(r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, name, description, status, time_estimate, due_date, is_complete)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+sqliteTaskColumns,
		t.ID, t.Name, t.Description, t.Status, t.TimeEstimate, t.DueDate, t.IsComplete,
	))
	return created, mapSQLiteError(err)
}

func (r *SQLiteRepo) Get(ctx context.Context, id string) (model.Task, error) {
	t, err := scanSQLiteTask(r.db.QueryRowContext(ctx, `
		SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?
	`, id))
	return t, mapSQLiteError(err)
}

func (r *SQLiteRepo) List(ctx context.Context) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteTaskColumns+` FROM tasks ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteRepo) Update(ctx context.Context, id string, p model.Patch) (model.Task, error) {
	t, err := scanSQLiteTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET name = ?, description = ?, time_estimate = ?, due_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING `+sqliteTaskColumns,
		p.Name, p.Description, p.TimeEstimate, p.DueDate, id,
	))
	return t, mapSQLiteError(err)
}

func (r *SQLiteRepo) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	t, err := scanSQLiteTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET is_complete = NOT is_complete, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING `+sqliteTaskColumns,
		id,
	))
	return t, mapSQLiteError(err)
}

func (r *SQLiteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES (?, ?)
		ON CONFLICT (key) DO NOTHING
	`, key, resourceID)
	return err
}

func (r *SQLiteRepo) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = ?
	`, key).Scan(&id)
	return id, mapSQLiteError(err)
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrorNotFound
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return ErrorConflict
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &t.TimeEstimate, &t.DueDate, &t.IsComplete)
	return t, err
}
