package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/model"
)

func newTestClient(t *testing.T, setup func(r chi.Router)) (*Client, *httptest.Server) {
	t.Helper()
	r := chi.NewRouter()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), zap.NewNop()), srv
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func TestClient_ListTasks(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		want     []model.Task
		wantKind error
	}{
		{
			name: "preserves server order",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, []model.Task{
					{ID: "2", Name: "second"},
					{ID: "1", Name: "first"},
				})
			},
			want: []model.Task{{ID: "2", Name: "second"}, {ID: "1", Name: "first"}},
		},
		{
			name: "null body is an empty list",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("null"))
			},
			want: []model.Task{},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
			},
			wantKind: ErrRequestFailed,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"id":`))
			},
			wantKind: ErrDecodeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r chi.Router) {
				r.Get("/tasks", tt.handler)
			})

			got, err := c.ListTasks(context.Background())
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CreateTask(t *testing.T) {
	t.Run("sends draft and decodes created task", func(t *testing.T) {
		var gotBody map[string]any
		var gotKey, gotRequestID string

		c, _ := newTestClient(t, func(r chi.Router) {
			r.Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.Header.Get("Idempotency-Key")
				gotRequestID = r.Header.Get("X-Request-Id")
				json.NewDecoder(r.Body).Decode(&gotBody)
				writeJSON(w, http.StatusCreated, model.Task{
					ID: "9", Name: "Buy milk", Description: "2%", Status: model.StatusPending,
				})
			})
		})

		task, err := c.CreateTask(context.Background(), model.Draft{Name: "Buy milk", Description: "2%"}, "key-1")
		require.NoError(t, err)
		assert.Equal(t, model.Task{ID: "9", Name: "Buy milk", Description: "2%", Status: "Pending"}, task)

		assert.Equal(t, "key-1", gotKey)
		assert.NotEmpty(t, gotRequestID)
		assert.Equal(t, map[string]any{"name": "Buy milk", "description": "2%"}, gotBody)
	})

	t.Run("no idempotency header when key is empty", func(t *testing.T) {
		c, _ := newTestClient(t, func(r chi.Router) {
			r.Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
				assert.Empty(t, r.Header.Get("Idempotency-Key"))
				writeJSON(w, http.StatusCreated, model.Task{ID: "1", Name: "n"})
			})
		})
		_, err := c.CreateTask(context.Background(), model.Draft{Name: "n", Description: "d"}, "")
		require.NoError(t, err)
	})

	failures := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind error
	}{
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation error"})
			},
			wantKind: ErrRequestFailed,
		},
		{
			name: "2xx with garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte("<html>"))
			},
			wantKind: ErrDecodeFailed,
		},
		{
			name: "task without id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusCreated, model.Task{Name: "n"})
			},
			wantKind: ErrDecodeFailed,
		},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r chi.Router) {
				r.Post("/tasks", tt.handler)
			})
			_, err := c.CreateTask(context.Background(), model.Draft{Name: "n", Description: "d"}, "")
			assert.ErrorIs(t, err, tt.wantKind)
		})
	}
}

func TestClient_UpdateTask(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		wantKind error
	}{
		{name: "ok", status: http.StatusOK, body: model.Task{ID: "1", Name: "Updated", Description: "d"}},
		{name: "missing task", status: http.StatusNotFound, body: map[string]string{"error": "not found"}, wantKind: ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, body: map[string]string{"error": "internal error"}, wantKind: ErrRequestFailed},
		{name: "different task returned", status: http.StatusOK, body: model.Task{ID: "2", Name: "x"}, wantKind: ErrDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPatch model.Patch
			c, _ := newTestClient(t, func(r chi.Router) {
				r.Put("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
					assert.Equal(t, "1", chi.URLParam(r, "id"))
					json.NewDecoder(r.Body).Decode(&gotPatch)
					writeJSON(w, tt.status, tt.body)
				})
			})

			task, err := c.UpdateTask(context.Background(), "1", model.Patch{Name: "Updated", Description: "d"})
			assert.Equal(t, model.Patch{Name: "Updated", Description: "d"}, gotPatch)
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Updated", task.Name)
		})
	}
}

func TestClient_ToggleComplete(t *testing.T) {
	complete := false
	c, _ := newTestClient(t, func(r chi.Router) {
		r.Put("/tasks/complete/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != "1" {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
				return
			}
			body, _ := io.ReadAll(r.Body)
			assert.Empty(t, body)
			complete = !complete
			writeJSON(w, http.StatusOK, model.Task{ID: "1", Name: "Write docs", IsComplete: complete})
		})
	})

	task, err := c.ToggleComplete(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, task.IsComplete)

	task, err = c.ToggleComplete(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, task.IsComplete)

	_, err = c.ToggleComplete(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "toggle complete", cerr.Op)
	assert.Equal(t, "404", cerr.TaskID)
	assert.Equal(t, http.StatusNotFound, cerr.StatusCode)
}

func TestClient_DeleteTask(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind error
	}{
		{name: "no content", status: http.StatusNoContent},
		{name: "ok with message", status: http.StatusOK},
		{name: "server failure", status: http.StatusInternalServerError, wantKind: ErrRequestFailed},
		{name: "missing task", status: http.StatusNotFound, wantKind: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r chi.Router) {
				r.Delete("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
					if tt.status == http.StatusNoContent {
						w.WriteHeader(tt.status)
						return
					}
					writeJSON(w, tt.status, map[string]string{"message": "whatever"})
				})
			})

			err := c.DeleteTask(context.Background(), "9")
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClient_ExportTasks(t *testing.T) {
	tests := []struct {
		name         string
		disposition  string
		wantFilename string
	}{
		{name: "server filename", disposition: "attachment;filename=tasks.csv", wantFilename: "tasks.csv"},
		{name: "quoted filename", disposition: `attachment; filename="export-2025.csv"`, wantFilename: "export-2025.csv"},
		{name: "no header", disposition: "", wantFilename: DefaultExportFilename},
		{name: "path traversal", disposition: `attachment; filename="../../etc/passwd"`, wantFilename: "passwd"},
		{name: "garbage header", disposition: ";;;", wantFilename: DefaultExportFilename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r chi.Router) {
				r.Get("/tasks/export", func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/csv")
					if tt.disposition != "" {
						w.Header().Set("Content-Disposition", tt.disposition)
					}
					w.Write([]byte("ID,Name\n1,a\n"))
				})
			})

			exp, err := c.ExportTasks(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantFilename, exp.Filename)
			assert.Equal(t, "text/csv", exp.ContentType)
			assert.Equal(t, "ID,Name\n1,a\n", string(exp.Data))
		})
	}

	t.Run("failure status", func(t *testing.T) {
		c, _ := newTestClient(t, func(r chi.Router) {
			r.Get("/tasks/export", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})
		})
		_, err := c.ExportTasks(context.Background())
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("body over limit", func(t *testing.T) {
		body := "ID,Name\n1,a\n"
		c, _ := newTestClient(t, func(r chi.Router) {
			r.Get("/tasks/export", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
		})

		c.exportLimit = int64(len(body))
		exp, err := c.ExportTasks(context.Background())
		require.NoError(t, err, "a body of exactly the limit is accepted")
		assert.Equal(t, body, string(exp.Data))

		c.exportLimit = int64(len(body)) - 1
		_, err = c.ExportTasks(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequestFailed)
		assert.Contains(t, err.Error(), "export exceeds 11 bytes")
	})
}

func TestClient_NetworkUnavailable(t *testing.T) {
	c, srv := newTestClient(t, func(r chi.Router) {})
	srv.Close()

	_, err := c.ListTasks(context.Background())
	assert.ErrorIs(t, err, ErrNetworkUnavailable)

	err = c.DeleteTask(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestClient_ContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(r chi.Router) {
		r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []model.Task{})
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []model.Task{})
	}))
	defer srv.Close()

	t.Run("with token", func(t *testing.T) {
		hc := NewHTTPClient(context.Background(), "secret", 5*time.Second)
		assert.Equal(t, 5*time.Second, hc.Timeout)

		_, err := New(srv.URL, hc, nil).ListTasks(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", gotAuth)
	})

	t.Run("without token", func(t *testing.T) {
		hc := NewHTTPClient(context.Background(), "", time.Second)
		_, err := New(srv.URL+"/", hc, nil).ListTasks(context.Background())
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})
}

func TestError_Error(t *testing.T) {
	err := &Error{Op: "delete task", TaskID: "9", StatusCode: 500, Kind: ErrRequestFailed, Err: errors.New("internal error")}
	assert.Equal(t, "delete task 9: request failed (status 500): internal error", err.Error())

	err = &Error{Op: "list tasks", Kind: ErrNetworkUnavailable}
	assert.Equal(t, "list tasks: network unavailable", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrNetworkUnavailable)
}
