package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/BuzzLyutic/gotask/internal/model"
)

const (
	// DefaultExportFilename is used when the server does not suggest one.
	DefaultExportFilename = "tasks.csv"

	maxJSONBody   = 10 << 20
	maxExportBody = 64 << 20
)

// Export is the server-generated task export.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client talks to the task server's REST API. Each method issues exactly one
// request and never retries.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	// exportLimit caps the export body; a larger one is an error.
	exportLimit int64
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpClient,
		logger:      logger,
		exportLimit: maxExportBody,
	}
}

// NewHTTPClient builds the transport used by the CLI. A non-empty token is
// sent as a bearer token on every request.
func NewHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = timeout
	return hc
}

// ListTasks returns the tasks in server order.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	const op = "list tasks"

	resp, err := c.do(ctx, op, "", http.MethodGet, "/tasks", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, "", false); err != nil {
		return nil, err
	}

	var tasks []model.Task
	if err := decodeJSON(resp, &tasks); err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Kind: ErrDecodeFailed, Err: err}
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// CreateTask submits a draft. A non-empty idempotencyKey lets the server
// recognise a repeated submission of the same draft.
func (c *Client) CreateTask(ctx context.Context, draft model.Draft, idempotencyKey string) (model.Task, error) {
	const op = "create task"

	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}

	resp, err := c.do(ctx, op, "", http.MethodPost, "/tasks", draft, header)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, "", false); err != nil {
		return model.Task{}, err
	}
	return decodeTask(resp, op, "")
}

// UpdateTask writes the editable fields of task id.
func (c *Client) UpdateTask(ctx context.Context, id string, patch model.Patch) (model.Task, error) {
	const op = "update task"

	resp, err := c.do(ctx, op, id, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, id, true); err != nil {
		return model.Task{}, err
	}
	return decodeTask(resp, op, id)
}

// ToggleComplete asks the server to flip isComplete on task id.
func (c *Client) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	const op = "toggle complete"

	resp, err := c.do(ctx, op, id, http.MethodPut, "/tasks/complete/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, id, true); err != nil {
		return model.Task{}, err
	}
	return decodeTask(resp, op, id)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	const op = "delete task"

	resp, err := c.do(ctx, op, id, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, id, true); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONBody))
	return nil
}

// ExportTasks downloads the server-generated export.
func (c *Client) ExportTasks(ctx context.Context) (Export, error) {
	const op = "export tasks"

	resp, err := c.do(ctx, op, "", http.MethodGet, "/tasks/export", nil, nil)
	if err != nil {
		return Export{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op, "", false); err != nil {
		return Export{}, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.exportLimit+1))
	if err != nil {
		return Export{}, &Error{Op: op, StatusCode: resp.StatusCode, Kind: ErrNetworkUnavailable, Err: err}
	}
	if int64(len(data)) > c.exportLimit {
		return Export{}, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Kind:       ErrRequestFailed,
			Err:        fmt.Errorf("export exceeds %d bytes", c.exportLimit),
		}
	}

	return Export{
		Filename:    exportFilename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *Client) do(ctx context.Context, op, id, method, p string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Op: op, TaskID: id, Kind: ErrRequestFailed, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, reader)
	if err != nil {
		return nil, &Error{Op: op, TaskID: id, Kind: ErrRequestFailed, Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("task server unreachable",
			zap.String("method", method),
			zap.String("path", p),
			zap.Error(err),
		)
		return nil, &Error{Op: op, TaskID: id, Kind: ErrNetworkUnavailable, Err: err}
	}

	c.logger.Debug("task server request",
		zap.String("method", method),
		zap.String("path", p),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return resp, nil
}

// checkStatus turns any non-2xx response into an Error. When notFound is set
// a 404 is reported as ErrNotFound instead of ErrRequestFailed.
func checkStatus(resp *http.Response, op, id string, notFound bool) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	kind := ErrRequestFailed
	if notFound && resp.StatusCode == http.StatusNotFound {
		kind = ErrNotFound
	}
	return &Error{
		Op:         op,
		TaskID:     id,
		StatusCode: resp.StatusCode,
		Kind:       kind,
		Err:        serverMessage(resp),
	}
}

// serverMessage extracts the {"error": "..."} body the server sends with
// failures, if there is one.
func serverMessage(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil || body.Error == "" {
		return nil
	}
	return errors.New(body.Error)
}

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(v)
}

func decodeTask(resp *http.Response, op, id string) (model.Task, error) {
	var t model.Task
	if err := decodeJSON(resp, &t); err != nil {
		return model.Task{}, &Error{Op: op, TaskID: id, StatusCode: resp.StatusCode, Kind: ErrDecodeFailed, Err: err}
	}
	if t.ID == "" {
		return model.Task{}, &Error{Op: op, TaskID: id, StatusCode: resp.StatusCode, Kind: ErrDecodeFailed, Err: errors.New("task has no id")}
	}
	if id != "" && t.ID != id {
		return model.Task{}, &Error{Op: op, TaskID: id, StatusCode: resp.StatusCode, Kind: ErrDecodeFailed,
			Err: fmt.Errorf("server returned task %s", t.ID)}
	}
	return t, nil
}

func exportFilename(disposition string) string {
	if disposition == "" {
		return DefaultExportFilename
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultExportFilename
	}
	name := path.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return DefaultExportFilename
	}
	return name
}
