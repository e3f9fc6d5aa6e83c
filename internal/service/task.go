package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/gotask/internal/model"
	"github.com/BuzzLyutic/gotask/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

// ExportHeader is the first row of every CSV export.
var ExportHeader = []string{"ID", "Name", "Status", "Description", "Time Estimate", "Due Date", "Is Complete"}

type TaskService struct {
	repo  repo.TaskRepository
	newID func() string
}

func NewTaskService(repo repo.TaskRepository) *TaskService {
	return &TaskService{repo: repo, newID: uuid.NewString}
}

func (s *TaskService) Create(ctx context.Context, d model.Draft, idempKey string) (model.Task, error) {
	d = normalize(d)
	if err := validate(d); err != nil { // Валидация модели на корректность введенных данных
		return model.Task{}, err
	}

	if idempKey != "" { // Обеспечение идемпотентности - если ключ с ресурсом уже существует, мы не создаем его еще раз
		if existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey); err == nil {
			return s.repo.Get(ctx, existingID)
		}
	}

	// Создание новой задачи
	resource, err := s.repo.Create(ctx, model.Task{
		ID:           s.newID(),
		Name:         d.Name,
		Description:  d.Description,
		Status:       model.StatusPending,
		TimeEstimate: d.TimeEstimate,
		DueDate:      d.DueDate,
	})
	if err != nil {
		return resource, err
	}

	// Сохранение нового ключа
	if idempKey != "" {
		return s.claimKey(ctx, idempKey, resource)
	}

	return resource, nil
}

// claimKey binds key to the freshly created task. When a concurrent request
// with the same key got there first, our copy is removed and theirs returned.
func (s *TaskService) claimKey(ctx context.Context, key string, created model.Task) (model.Task, error) {
	if err := s.repo.SaveIdempotencyKey(ctx, key, created.ID); err != nil {
		return created, nil
	}
	winner, err := s.repo.GetIdempotencyKey(ctx, key)
	if err != nil || winner == created.ID {
		return created, nil
	}
	if err := s.repo.Delete(ctx, created.ID); err != nil && !errors.Is(err, repo.ErrorNotFound) {
		return model.Task{}, err
	}
	return s.repo.Get(ctx, winner)
}

func (s *TaskService) Get(ctx context.Context, id string) (model.Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	return s.repo.List(ctx)
}

func (s *TaskService) Update(ctx context.Context, id string, p model.Patch) (model.Task, error) {
	p = model.Patch(normalize(model.Draft(p)))
	if err := validate(model.Draft(p)); err != nil {
		return model.Task{}, err
	}
	return s.repo.Update(ctx, id, p)
}

func (s *TaskService) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	return s.repo.ToggleComplete(ctx, id)
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ExportCSV renders every task as CSV, header row first.
func (s *TaskService) ExportCSV(ctx context.Context) ([]byte, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportHeader); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		record := []string{
			t.ID,
			t.Name,
			t.Status,
			t.Description,
			strconv.Itoa(t.TimeEstimate),
			t.DueDate,
			strconv.FormatBool(t.IsComplete),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func normalize(d model.Draft) model.Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.DueDate = strings.TrimSpace(d.DueDate)
	return d
}

func validate(d model.Draft) error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if d.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if d.TimeEstimate < 0 {
		return fmt.Errorf("%w: timeEstimate must not be negative", ErrValidation)
	}
	if err := model.ValidateDueDate(d.DueDate); err != nil {
		return fmt.Errorf("%w: dueDate %s", ErrValidation, err)
	}
	return nil
}
