package repo

import (
	"context"
	"errors"

	"github.com/BuzzLyutic/gotask/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Get(ctx context.Context, id string) (model.Task, error)
	// List returns tasks in the order they were created.
	List(ctx context.Context) ([]model.Task, error)
	// Update writes only the user-editable fields; status and completion
	// are left as stored.
	Update(ctx context.Context, id string, p model.Patch) (model.Task, error)
	ToggleComplete(ctx context.Context, id string) (model.Task, error)
	Delete(ctx context.Context, id string) error
	SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
}
