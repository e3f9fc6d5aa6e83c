package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/gotask/internal/model"
)

func newTask(name string) model.Task {
	return model.Task{
		ID:          uuid.NewString(),
		Name:        name,
		Description: name + " description",
		Status:      model.StatusPending,
	}
}

// runRepositoryTests exercises the behaviour every TaskRepository backend
// must share. newRepo must return an empty repository.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) TaskRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("Buy milk")
		task.TimeEstimate = 2
		task.DueDate = "2025-03-01"

		created, err := r.Create(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, task, created)

		got, err := r.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task, got)
	})

	t.Run("create duplicate id", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		_, err = r.Create(ctx, task)
		assert.ErrorIs(t, err, ErrorConflict)
	})

	t.Run("get missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("list keeps creation order", func(t *testing.T) {
		r := newRepo(t)
		empty, err := r.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		var want []string
		for _, name := range []string{"c", "a", "b"} {
			task := newTask(name)
			_, err := r.Create(ctx, task)
			require.NoError(t, err)
			want = append(want, task.ID)
		}

		tasks, err := r.List(ctx)
		require.NoError(t, err)
		var got []string
		for _, task := range tasks {
			got = append(got, task.ID)
		}
		assert.Equal(t, want, got)
	})

	t.Run("update writes editable fields only", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		task.Status = "In Progress"
		task.IsComplete = true
		task.TimeEstimate = 4
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		updated, err := r.Update(ctx, task.ID, model.Patch{Name: "renamed", Description: "new", DueDate: "2025-12-31"})
		require.NoError(t, err)

		assert.Equal(t, "renamed", updated.Name)
		assert.Equal(t, "new", updated.Description)
		assert.Equal(t, 0, updated.TimeEstimate)
		assert.Equal(t, "2025-12-31", updated.DueDate)
		assert.Equal(t, "In Progress", updated.Status)
		assert.True(t, updated.IsComplete)

		_, err = r.Update(ctx, "missing", model.Patch{Name: "x", Description: "y"})
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("toggle complete", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		toggled, err := r.ToggleComplete(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, toggled.IsComplete)

		toggled, err = r.ToggleComplete(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, toggled.IsComplete)

		_, err = r.ToggleComplete(ctx, "missing")
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("concurrent toggles are all applied", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.ToggleComplete(ctx, task.ID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := r.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, got.IsComplete, "an even number of toggles lands on the original value")
	})

	t.Run("delete", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		require.NoError(t, r.Delete(ctx, task.ID))
		_, err = r.Get(ctx, task.ID)
		assert.ErrorIs(t, err, ErrorNotFound)

		assert.ErrorIs(t, r.Delete(ctx, task.ID), ErrorNotFound)
	})

	t.Run("idempotency keys", func(t *testing.T) {
		r := newRepo(t)
		task := newTask("a")
		_, err := r.Create(ctx, task)
		require.NoError(t, err)

		_, err = r.GetIdempotencyKey(ctx, "k1")
		assert.ErrorIs(t, err, ErrorNotFound)

		require.NoError(t, r.SaveIdempotencyKey(ctx, "k1", task.ID))
		require.NoError(t, r.SaveIdempotencyKey(ctx, "k1", task.ID), "saving twice is a no-op")

		id, err := r.GetIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, task.ID, id)

		// keys go away with their task
		require.NoError(t, r.Delete(ctx, task.ID))
		_, err = r.GetIdempotencyKey(ctx, "k1")
		assert.ErrorIs(t, err, ErrorNotFound)
	})
}
