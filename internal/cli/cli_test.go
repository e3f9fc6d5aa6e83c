package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/config"
	"github.com/BuzzLyutic/gotask/internal/handler"
	"github.com/BuzzLyutic/gotask/internal/model"
	"github.com/BuzzLyutic/gotask/internal/repo"
	"github.com/BuzzLyutic/gotask/internal/service"
	"github.com/BuzzLyutic/gotask/internal/state"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	taskRepo, err := repo.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { taskRepo.Close() })

	r := chi.NewRouter()
	handler.NewTaskHandler(service.NewTaskService(taskRepo), zap.NewNop()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type runner struct {
	t         *testing.T
	url       string
	exportDir string
}

func newRunner(t *testing.T) *runner {
	return &runner{t: t, url: startServer(t).URL, exportDir: t.TempDir()}
}

// run executes one gotask invocation, the way a fresh process would.
func (r *runner) run(args ...string) (string, error) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Client.BaseURL = r.url
	cfg.Client.LoadRetries = 0
	cfg.Client.ExportDir = r.exportDir

	root := NewRootCommand(NewApp(cfg, zap.NewNop(), &out))
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (r *runner) serverTasks() []model.Task {
	r.t.Helper()
	resp, err := http.Get(r.url + "/tasks")
	require.NoError(r.t, err)
	defer resp.Body.Close()

	var tasks []model.Task
	require.NoError(r.t, json.NewDecoder(resp.Body).Decode(&tasks))
	return tasks
}

func (r *runner) create(name string) model.Task {
	r.t.Helper()
	_, err := r.run("create", "--name", name, "--description", name+" details")
	require.NoError(r.t, err)
	for _, task := range r.serverTasks() {
		if task.Name == name {
			return task
		}
	}
	r.t.Fatalf("task %q not on server", name)
	return model.Task{}
}

func TestCreateAndList(t *testing.T) {
	r := newRunner(t)

	out, err := r.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")

	out, err = r.run("create", "-n", "Buy milk", "-d", "2%", "-e", "1", "--due", "2025-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Created task")

	tasks := r.serverTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Name)
	assert.Equal(t, 1, tasks[0].TimeEstimate)

	out, err = r.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, tasks[0].ID)
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "2025-03-01")
}

func TestCreate_InvalidInput(t *testing.T) {
	r := newRunner(t)

	_, err := r.run("create", "--description", "no name", "--estimate", "lots")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "Please fix the form: name: is required", Message(err))
	assert.Empty(t, r.serverTasks())
}

func TestEdit(t *testing.T) {
	r := newRunner(t)
	task := r.create("Write docs")

	out, err := r.run("edit", task.ID, "--due", "2025-04-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated task "+task.ID)

	tasks := r.serverTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write docs", tasks[0].Name, "flags not given keep their value")
	assert.Equal(t, "2025-04-01", tasks[0].DueDate)

	_, err = r.run("edit", "missing", "--name", "x")
	assert.ErrorIs(t, err, state.ErrUnknownTask)
}

func TestToggleAndDelete_Batch(t *testing.T) {
	r := newRunner(t)
	a := r.create("a")
	b := r.create("b")
	c := r.create("c")

	out, err := r.run("toggle", a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "marked complete"))

	done := map[string]bool{}
	for _, task := range r.serverTasks() {
		done[task.ID] = task.IsComplete
	}
	assert.Equal(t, map[string]bool{a.ID: true, b.ID: true, c.ID: false}, done)

	out, err = r.run("delete", c.ID, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntentsFailed)
	assert.Equal(t, "1 of 2: some tasks could not be changed", Message(err))
	assert.Contains(t, out, "Task "+c.ID+" deleted.")
	assert.Contains(t, out, "That task is not in the list.")

	assert.Len(t, r.serverTasks(), 2)
}

func TestExport(t *testing.T) {
	r := newRunner(t)
	task := r.create("Export me")

	out, err := r.run("export")
	require.NoError(t, err)

	p := filepath.Join(r.exportDir, "tasks.csv")
	assert.Contains(t, out, p)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Name,Status,Description,Time Estimate,Due Date,Is Complete", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], task.ID+",Export me,Pending,"))

	other := t.TempDir()
	_, err = r.run("export", "--dir", other)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(other, "tasks.csv"))
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := &runner{t: t, url: url, exportDir: t.TempDir()}
	_, err := r.run("list")
	require.Error(t, err)
	assert.Equal(t, "Could not list tasks: the task server could not be reached.", Message(err))
}
