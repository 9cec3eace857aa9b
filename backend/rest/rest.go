// Package rest provides a backend implementation for the tasks REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"taskdesk/backend"
	"taskdesk/internal/utils"
)

const (
	// DefaultBaseURL is used when no base URL is configured
	DefaultBaseURL = "https://localhost:7140"

	// DefaultTimeout bounds every request unless overridden
	DefaultTimeout = 30 * time.Second

	tasksPath  = "/api/tasks"
	orderPath  = "/api/apps/tasks/order"
	searchPath = "/api/apps/tasks/search"
)

// Config holds API connection settings
type Config struct {
	BaseURL string
	Token   string
	// TokenSource overrides Token when set
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
	// Transport overrides the default HTTP transport (tests)
	Transport http.RoundTripper
}

// Client implements backend.TaskAPI over HTTP
type Client struct {
	client  *http.Client
	baseURL string
}

// New creates a new API client
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	return &Client{
		client:  createHTTPClient(cfg),
		baseURL: baseURL,
	}, nil
}

// createHTTPClient creates an HTTP client that attaches the bearer token, if any
func createHTTPClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	ts := cfg.TokenSource
	if ts == nil && cfg.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}

	transport := base
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: base}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// BaseURL returns the normalized base URL requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// doRequest performs a JSON request and returns the response for 2xx statuses
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	utils.Debugf("%s %s (request %s)", method, u, requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &backend.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &backend.ServerError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	return resp, nil
}

// decode reads a JSON body into v. An empty body leaves v untouched and reports false.
func decode(op string, resp *http.Response, v interface{}) (bool, error) {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &backend.NetworkError{Op: op, Err: err}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return true, nil
}

// =============================================================================
// Task Operations
// =============================================================================

// GetTasks returns every task
func (c *Client) GetTasks(ctx context.Context) ([]backend.Task, error) {
	resp, err := c.doRequest(ctx, "get tasks", http.MethodGet, tasksPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var tasks []backend.Task
	if _, err := decode("get tasks", resp, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []backend.Task{}
	}
	return tasks, nil
}

// SearchTasks passes the query to the search endpoint. A null body yields nil.
func (c *Client) SearchTasks(ctx context.Context, query string) ([]backend.Task, error) {
	resp, err := c.doRequest(ctx, "search tasks", http.MethodGet, searchPath, url.Values{"query": {query}}, nil)
	if err != nil {
		return nil, err
	}

	var tasks []backend.Task
	if _, err := decode("search tasks", resp, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask posts a task without id and returns the server's copy
func (c *Client) CreateTask(ctx context.Context, task backend.Task) (*backend.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.ID = 0

	resp, err := c.doRequest(ctx, "create task", http.MethodPost, tasksPath, nil, task)
	if err != nil {
		return nil, err
	}

	var created backend.Task
	ok, err := decode("create task", resp, &created)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create task: empty response body")
	}
	return &created, nil
}

// UpdateTask puts the task. When the server answers without a body the sent task is returned.
func (c *Client) UpdateTask(ctx context.Context, id int, task backend.Task) (*backend.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.ID == 0 {
		task.ID = id
	}

	resp, err := c.doRequest(ctx, "update task", http.MethodPut, tasksPath+"/"+strconv.Itoa(id), nil, task)
	if err != nil {
		return nil, err
	}

	var updated backend.Task
	ok, err := decode("update task", resp, &updated)
	if err != nil {
		return nil, err
	}
	if !ok || updated.ID == 0 {
		sent := task
		return &sent, nil
	}
	return &updated, nil
}

// DeleteTask deletes a task and returns the server's deletion flag.
// A 2xx response without a body counts as deleted.
func (c *Client) DeleteTask(ctx context.Context, id int) (bool, error) {
	idStr := strconv.Itoa(id)
	resp, err := c.doRequest(ctx, "delete task", http.MethodDelete, tasksPath+"/"+idStr, url.Values{"id": {idStr}}, nil)
	if err != nil {
		return false, err
	}

	var deleted bool
	ok, err := decode("delete task", resp, &deleted)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Some servers echo the deleted entity instead of a flag
			return true, nil
		}
		return false, err
	}
	if !ok {
		return true, nil
	}
	return deleted, nil
}

// UpdateTasksOrders patches the ordering of tasks
func (c *Client) UpdateTasksOrders(ctx context.Context, tasks []backend.Task) ([]backend.Task, error) {
	body := struct {
		Tasks []backend.Task `json:"tasks"`
	}{Tasks: tasks}

	resp, err := c.doRequest(ctx, "update task order", http.MethodPatch, orderPath, nil, body)
	if err != nil {
		return nil, err
	}

	var ordered []backend.Task
	if _, err := decode("update task order", resp, &ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

// Verify interface compliance at compile time
var _ backend.TaskAPI = (*Client)(nil)
