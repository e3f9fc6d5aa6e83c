// Package state keeps the local task list in step with the task server.
//
// Every change is pessimistic: the local list only changes after the server
// has answered, and it is then overwritten with the server's copy of the task.
// At most one update, toggle or delete may be in flight per task; a second
// one is rejected with ErrBusy rather than queued.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/client"
	"github.com/BuzzLyutic/gotask/internal/model"
)

var (
	ErrBusy        = errors.New("a change to this task is already in progress")
	ErrInvalidMode = errors.New("not available in the current mode")
	ErrUnknownTask = errors.New("unknown task")
)

// TaskClient is the subset of the task server API the store depends on.
type TaskClient interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, draft model.Draft, idempotencyKey string) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.Patch) (model.Task, error)
	ToggleComplete(ctx context.Context, id string) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ExportTasks(ctx context.Context) (client.Export, error)
}

type Option func(*Store)

// WithLoadRetries sets how many times Load retries after the server could
// not be reached. Other failures are never retried.
func WithLoadRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.loadRetries = n
		}
	}
}

// WithBackOff replaces the exponential backoff used between Load retries.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = f
	}
}

// WithKeyGenerator replaces the idempotency key generator.
func WithKeyGenerator(f func() string) Option {
	return func(s *Store) {
		s.newKey = f
	}
}

// change is a server-confirmed mutation of the list.
type change struct {
	seq     uint64
	task    model.Task
	removed bool
}

type Store struct {
	client      TaskClient
	logger      *zap.Logger
	loadRetries int
	newBackOff  func() backoff.BackOff
	newKey      func() string

	mu      sync.Mutex
	tasks   taskList
	loadErr error
	// loadSeq numbers Load calls; loadApplied is the newest one whose
	// result made it into tasks.
	loadSeq     uint64
	loadApplied uint64
	// loading counts Load calls waiting on the server. While any is waiting,
	// confirmed changes are journaled so the snapshot it brings back can be
	// brought up to date before it replaces the list.
	loading   int
	changeSeq uint64
	changes   []change

	mode Mode
	// session changes every time a create or edit screen is opened or
	// left, so late responses can tell whether their screen is still up.
	session    uint64
	submitting uint64
	draft      model.Form
	draftKey   string
	working    model.Form

	inflight map[string]struct{}
}

func NewStore(c TaskClient, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		client:      c,
		logger:      logger,
		loadRetries: 2,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		newKey:   uuid.NewString,
		tasks:    newTaskList(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the full list from the server and replaces the local one. On
// failure the current list is kept and the error is also available from
// LoadErr.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	since := s.changeSeq
	s.loading++
	s.mu.Unlock()

	tasks, err := s.listWithRetry(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.changesSince(since)
	s.loading--
	if s.loading == 0 {
		s.changes = nil
	}

	if seq < s.loadApplied {
		s.logger.Debug("discarding stale load", zap.Uint64("load", seq))
		return err
	}
	if err != nil {
		s.loadErr = err
		s.logger.Warn("failed to load tasks", zap.Error(err))
		return err
	}

	s.tasks.replace(tasks)
	// the snapshot may predate changes confirmed while it was in flight
	for _, c := range pending {
		if c.removed {
			s.tasks.remove(c.task.ID)
		} else {
			s.tasks.upsert(c.task)
		}
	}
	s.loadErr = nil
	s.loadApplied = seq
	s.logger.Debug("tasks loaded", zap.Int("count", len(tasks)), zap.Int("replayed", len(pending)))
	return nil
}

func (s *Store) changesSince(seq uint64) []change {
	for i, c := range s.changes {
		if c.seq > seq {
			return s.changes[i:]
		}
	}
	return nil
}

// confirm stores the server's copy of a task. Callers hold s.mu.
func (s *Store) confirm(t model.Task) {
	s.tasks.upsert(t)
	s.journal(change{task: t})
}

// confirmRemoved drops a task the server has deleted. Callers hold s.mu.
func (s *Store) confirmRemoved(id string) {
	s.tasks.remove(id)
	s.journal(change{task: model.Task{ID: id}, removed: true})
}

func (s *Store) journal(c change) {
	s.changeSeq++
	if s.loading == 0 {
		return
	}
	c.seq = s.changeSeq
	s.changes = append(s.changes, c)
}

func (s *Store) listWithRetry(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	op := func() error {
		var err error
		tasks, err = s.client.ListTasks(ctx)
		if err != nil && !errors.Is(err, client.ErrNetworkUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.loadRetries)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		s.logger.Warn("task server unreachable, retrying load",
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	return tasks, err
}

// BeginCreate opens the create screen with an empty draft.
func (s *Store) BeginCreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Kind != Viewing {
		return fmt.Errorf("new task while %s: %w", s.mode, ErrInvalidMode)
	}
	s.session++
	s.mode = Mode{Kind: Creating}
	s.draft = model.Form{}
	s.draftKey = s.newKey()
	return nil
}

// SetDraft stores the user's input on the create screen.
func (s *Store) SetDraft(f model.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Kind != Creating {
		return fmt.Errorf("edit draft while %s: %w", s.mode, ErrInvalidMode)
	}
	if s.submitting == s.session {
		return ErrBusy
	}
	if f != s.draft {
		s.draft = f
		// a changed draft is a different task, not a retry of the old one
		s.draftKey = s.newKey()
	}
	return nil
}

// SubmitCreate validates the draft and sends it to the server. On success the
// returned task is added to the list and, if the create screen is still
// open, the store goes back to Viewing. On failure the draft is kept.
func (s *Store) SubmitCreate(ctx context.Context) (model.Task, error) {
	s.mu.Lock()
	if s.mode.Kind != Creating {
		mode := s.mode
		s.mu.Unlock()
		return model.Task{}, fmt.Errorf("submit create while %s: %w", mode, ErrInvalidMode)
	}
	if s.submitting == s.session {
		s.mu.Unlock()
		return model.Task{}, ErrBusy
	}
	draft, err := s.draft.Draft()
	if err != nil {
		s.mu.Unlock()
		return model.Task{}, err
	}
	session, key := s.session, s.draftKey
	s.submitting = session
	s.mu.Unlock()

	task, err := s.client.CreateTask(ctx, draft, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting == session {
		s.submitting = 0
	}
	if err != nil {
		s.logger.Warn("failed to create task", zap.String("name", draft.Name), zap.Error(err))
		return model.Task{}, err
	}

	s.confirm(task)
	s.logger.Debug("task created", zap.String("task_id", task.ID))
	if s.session == session {
		s.leave()
	}
	return task, nil
}

// BeginEdit opens the edit screen with a working copy of task id.
func (s *Store) BeginEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Kind != Viewing {
		return fmt.Errorf("edit task while %s: %w", s.mode, ErrInvalidMode)
	}
	t, ok := s.tasks.get(id)
	if !ok {
		return fmt.Errorf("edit task %s: %w", id, ErrUnknownTask)
	}
	s.session++
	s.mode = Mode{Kind: Editing, TaskID: id}
	s.working = model.FormFromTask(t)
	return nil
}

// SetWorkingCopy stores the user's edits. The task in the list is untouched
// until SubmitEdit succeeds.
func (s *Store) SetWorkingCopy(f model.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Kind != Editing {
		return fmt.Errorf("edit working copy while %s: %w", s.mode, ErrInvalidMode)
	}
	if s.submitting == s.session {
		return ErrBusy
	}
	s.working = f
	return nil
}

// SubmitEdit validates the working copy and sends it to the server. On
// success the server's task replaces the local one; on failure the working
// copy is kept.
func (s *Store) SubmitEdit(ctx context.Context) (model.Task, error) {
	s.mu.Lock()
	if s.mode.Kind != Editing {
		mode := s.mode
		s.mu.Unlock()
		return model.Task{}, fmt.Errorf("submit edit while %s: %w", mode, ErrInvalidMode)
	}
	id := s.mode.TaskID
	patch, err := s.working.Patch()
	if err != nil {
		s.mu.Unlock()
		return model.Task{}, err
	}
	if !s.acquire(id) {
		s.mu.Unlock()
		return model.Task{}, fmt.Errorf("update task %s: %w", id, ErrBusy)
	}
	session := s.session
	s.submitting = session
	s.mu.Unlock()

	task, err := s.client.UpdateTask(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.release(id)
	if s.submitting == session {
		s.submitting = 0
	}
	if err != nil {
		s.logger.Warn("failed to update task", zap.String("task_id", id), zap.Error(err))
		return model.Task{}, err
	}

	s.confirm(task)
	s.logger.Debug("task updated", zap.String("task_id", id))
	if s.session == session {
		s.leave()
	}
	return task, nil
}

// Cancel leaves the create or edit screen, dropping the draft or working
// copy. Requests already sent still complete and update the list.
func (s *Store) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.Kind != Viewing {
		s.leave()
	}
}

// ToggleComplete asks the server to flip the task's completion and stores
// the server's answer.
func (s *Store) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	s.mu.Lock()
	if _, ok := s.tasks.get(id); !ok {
		s.mu.Unlock()
		return model.Task{}, fmt.Errorf("toggle task %s: %w", id, ErrUnknownTask)
	}
	if !s.acquire(id) {
		s.mu.Unlock()
		return model.Task{}, fmt.Errorf("toggle task %s: %w", id, ErrBusy)
	}
	s.mu.Unlock()

	task, err := s.client.ToggleComplete(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.release(id)
	if err != nil {
		s.logger.Warn("failed to toggle task", zap.String("task_id", id), zap.Error(err))
		return model.Task{}, err
	}
	s.confirm(task)
	s.logger.Debug("task toggled", zap.String("task_id", id), zap.Bool("complete", task.IsComplete))
	return task, nil
}

// Delete removes the task once the server confirms. A task being edited is
// closed as well.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.tasks.get(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete task %s: %w", id, ErrUnknownTask)
	}
	if !s.acquire(id) {
		s.mu.Unlock()
		return fmt.Errorf("delete task %s: %w", id, ErrBusy)
	}
	s.mu.Unlock()

	err := s.client.DeleteTask(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.release(id)
	if err != nil {
		s.logger.Warn("failed to delete task", zap.String("task_id", id), zap.Error(err))
		return err
	}
	s.confirmRemoved(id)
	if s.mode.Kind == Editing && s.mode.TaskID == id {
		s.leave()
	}
	s.logger.Debug("task deleted", zap.String("task_id", id))
	return nil
}

// Export downloads the server export and saves it in dir under the name the
// server suggests. It returns the path written.
func (s *Store) Export(ctx context.Context, dir string) (string, error) {
	exp, err := s.client.ExportTasks(ctx)
	if err != nil {
		s.logger.Warn("failed to export tasks", zap.Error(err))
		return "", err
	}

	name := filepath.Base(exp.Filename)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		name = client.DefaultExportFilename
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, exp.Data, 0o644); err != nil {
		s.logger.Warn("failed to save export", zap.String("path", p), zap.Error(err))
		return "", fmt.Errorf("save export: %w", err)
	}
	s.logger.Info("tasks exported", zap.String("path", p), zap.Int("bytes", len(exp.Data)))
	return p, nil
}

// Tasks returns a copy of the list in display order.
func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.all()
}

func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.get(id)
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Draft returns the create screen input.
func (s *Store) Draft() model.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// WorkingCopy returns the edit screen input; ok is false when not editing.
func (s *Store) WorkingCopy() (model.Form, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind != Editing {
		return model.Form{}, false
	}
	return s.working, true
}

// LoadErr is the error of the last Load, or nil once a Load has succeeded.
func (s *Store) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Busy reports whether a change to task id is waiting for the server.
func (s *Store) Busy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

// acquire and release must be called with mu held.
func (s *Store) acquire(id string) bool {
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Store) release(id string) {
	delete(s.inflight, id)
}

// leave returns to Viewing and drops any unsaved input. mu must be held.
func (s *Store) leave() {
	s.session++
	s.mode = Mode{Kind: Viewing}
	s.draft = model.Form{}
	s.draftKey = ""
	s.working = model.Form{}
}
