package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/model"
	"github.com/BuzzLyutic/gotask/internal/state"
)

var ErrStopped = errors.New("worker pool stopped")

type IntentKind int

const (
	Toggle IntentKind = iota
	Delete
)

func (k IntentKind) String() string {
	switch k {
	case Toggle:
		return "toggle"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Intent is a user action on a single task that can run in the background.
type Intent struct {
	Kind   IntentKind
	TaskID string
}

// Notification reports how an intent ended. Message is ready to show to the
// user; Task is only set for a successful toggle.
type Notification struct {
	Intent  Intent
	Task    model.Task
	Err     error
	Message string
}

// Executor runs intents. *state.Store satisfies it.
type Executor interface {
	ToggleComplete(ctx context.Context, id string) (model.Task, error)
	Delete(ctx context.Context, id string) error
}

type Pool struct {
	exec     Executor
	logger   *zap.Logger
	count    int
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	intents  chan Intent
	notes    chan Notification
}

func NewPool(exec Executor, logger *zap.Logger, count int) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{
		exec:    exec,
		logger:  logger,
		count:   count,
		stop:    make(chan struct{}),
		intents: make(chan Intent),
		notes:   make(chan Notification, count),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("workers", p.count))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit hands an intent to the next free worker. It blocks until a worker
// takes it, ctx is done or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, in Intent) error {
	select {
	case <-p.stop:
		return ErrStopped
	default:
	}

	select {
	case p.intents <- in:
		return nil
	case <-p.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifications delivers one Notification per processed intent. The channel
// is closed by Stop.
func (p *Pool) Notifications() <-chan Notification {
	return p.notes
}

// Stop waits for running intents to finish and closes Notifications. Safe to
// call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping worker pool...")
		close(p.stop)
		p.wg.Wait()
		close(p.notes)
		p.logger.Info("Worker pool stopped")
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case in := <-p.intents:
			if !p.deliver(p.process(ctx, id, in)) {
				p.logger.Warn("dropping notification on shutdown",
					zap.Int("worker", id),
					zap.String("intent", in.Kind.String()),
					zap.String("task_id", in.TaskID),
				)
				return
			}
		}
	}
}

// deliver prefers a free buffer slot over shutdown, so a finished intent is
// still reported when Stop races with it.
func (p *Pool) deliver(n Notification) bool {
	select {
	case p.notes <- n:
		return true
	default:
	}
	select {
	case p.notes <- n:
		return true
	case <-p.stop:
		return false
	}
}

func (p *Pool) process(ctx context.Context, workerID int, in Intent) Notification {
	n := Notification{Intent: in}

	switch in.Kind {
	case Toggle:
		n.Task, n.Err = p.exec.ToggleComplete(ctx, in.TaskID)
	case Delete:
		n.Err = p.exec.Delete(ctx, in.TaskID)
	default:
		n.Err = fmt.Errorf("unknown intent %d", in.Kind)
	}

	if n.Err != nil {
		n.Message = state.UserMessage(n.Err)
		p.logger.Warn("intent failed",
			zap.Int("worker", workerID),
			zap.String("intent", in.Kind.String()),
			zap.String("task_id", in.TaskID),
			zap.Error(n.Err),
		)
		return n
	}

	n.Message = successMessage(in, n.Task)
	p.logger.Info("intent done",
		zap.Int("worker", workerID),
		zap.String("intent", in.Kind.String()),
		zap.String("task_id", in.TaskID),
	)
	return n
}

func successMessage(in Intent, t model.Task) string {
	if in.Kind == Delete {
		return fmt.Sprintf("Task %s deleted.", in.TaskID)
	}
	if t.IsComplete {
		return fmt.Sprintf("Task %q marked complete.", t.Name)
	}
	return fmt.Sprintf("Task %q marked not complete.", t.Name)
}
