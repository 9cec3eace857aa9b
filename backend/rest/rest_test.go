package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdesk/backend"
	"taskdesk/internal/testutil/fakeapi"
)

const testToken = "test-token"

func newTestClient(t *testing.T, api *fakeapi.Server) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: api.URL(), Token: testToken, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewDefaultsAndValidation(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c, err = New(Config{BaseURL: "http://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", c.BaseURL())

	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestGetTasks(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(
		backend.Task{ID: 1, Title: "one", ExpiryDate: "2026-01-01T00:00:00Z"},
		backend.Task{ID: 2, Title: "two", IsChecked: true},
	)
	c := newTestClient(t, api)

	tasks, err := c.GetTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "one", tasks[0].Title)
	assert.True(t, tasks[1].IsChecked)
	assert.Equal(t, []string{"GET /api/tasks"}, api.RequestLog())
}

func TestGetTasksEmptyIsNotNil(t *testing.T) {
	api := fakeapi.New(t, testToken)
	c := newTestClient(t, api)

	tasks, err := c.GetTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestRequestsCarryBearerAndRequestID(t *testing.T) {
	api := fakeapi.New(t, testToken)
	c := newTestClient(t, api)

	_, err := c.GetTasks(context.Background())
	require.NoError(t, err)
	_, err = c.GetTasks(context.Background())
	require.NoError(t, err)

	ids := api.RequestIDs()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestUnauthorized(t *testing.T) {
	api := fakeapi.New(t, testToken)
	c, err := New(Config{BaseURL: api.URL(), Token: "wrong"})
	require.NoError(t, err)

	_, err = c.GetTasks(context.Background())
	var serverErr *backend.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusUnauthorized, serverErr.StatusCode)
	assert.True(t, serverErr.IsUnauthorized())
}

func TestSearchTasksSendsQuery(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(
		backend.Task{ID: 1, Title: "Buy milk"},
		backend.Task{ID: 2, Title: "Walk dog", Description: "with milk bones"},
		backend.Task{ID: 3, Title: "Other"},
	)
	c := newTestClient(t, api)

	tasks, err := c.SearchTasks(context.Background(), "milk & honey")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	tasks, err = c.SearchTasks(context.Background(), "milk")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	log := api.RequestLog()
	assert.Equal(t, "GET /api/apps/tasks/search?query=milk+%26+honey", log[0])
	assert.Equal(t, "GET /api/apps/tasks/search?query=milk", log[1])
}

func TestSearchTasksNullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	tasks, err := c.SearchTasks(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, tasks)
}

func TestCreateTask(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 4, Title: "existing"})
	c := newTestClient(t, api)

	seed := backend.SeedTask(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	seed.ID = 99

	created, err := c.CreateTask(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 5, created.ID)
	assert.Equal(t, "title", created.Title)
	assert.Equal(t, "my description", created.Description)
	assert.Equal(t, "2026-02-01T08:00:00Z", created.ExpiryDate)
	assert.Equal(t, []string{"POST /api/tasks"}, api.RequestLog())
}

func TestCreateTaskRejectsBadExpiry(t *testing.T) {
	api := fakeapi.New(t, testToken)
	c := newTestClient(t, api)

	_, err := c.CreateTask(context.Background(), backend.Task{Title: "x", ExpiryDate: "tomorrow"})
	var verr *backend.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, api.RequestLog(), "invalid tasks must not reach the server")
}

func TestUpdateTask(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 7, Title: "old"})
	c := newTestClient(t, api)

	updated, err := c.UpdateTask(context.Background(), 7, backend.Task{Title: "new", IsChecked: true})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.ID)
	assert.Equal(t, "new", updated.Title)
	assert.True(t, updated.IsChecked)
	assert.Equal(t, "new", api.Tasks()[0].Title)
	assert.Equal(t, []string{"PUT /api/tasks/7"}, api.RequestLog())
}

func TestUpdateTaskEmptyBodyReturnsSentTask(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 7, Title: "old"})
	api.SetEmptyBodies(true)
	c := newTestClient(t, api)

	updated, err := c.UpdateTask(context.Background(), 7, backend.Task{ID: 7, Title: "sent"})
	require.NoError(t, err)
	assert.Equal(t, backend.Task{ID: 7, Title: "sent"}, *updated)
}

func TestUpdateTaskNotFoundOnServer(t *testing.T) {
	api := fakeapi.New(t, testToken)
	c := newTestClient(t, api)

	_, err := c.UpdateTask(context.Background(), 3, backend.Task{Title: "x"})
	var serverErr *backend.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusNotFound, serverErr.StatusCode)
	assert.Equal(t, "update task", serverErr.Op)
}

func TestDeleteTask(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 1}, backend.Task{ID: 2})
	c := newTestClient(t, api)

	ok, err := c.DeleteTask(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"DELETE /api/tasks/2?id=2"}, api.RequestLog())
	assert.Len(t, api.Tasks(), 1)

	ok, err = c.DeleteTask(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTaskEmptyBodyCountsAsDeleted(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 1})
	api.SetEmptyBodies(true)
	c := newTestClient(t, api)

	ok, err := c.DeleteTask(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteTaskEntityBodyCountsAsDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"title":"gone"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ok, err := c.DeleteTask(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateTasksOrders(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Seed(backend.Task{ID: 1}, backend.Task{ID: 2}, backend.Task{ID: 3})
	c := newTestClient(t, api)

	ordered, err := c.UpdateTasksOrders(context.Background(), []backend.Task{{ID: 3}, {ID: 1}, {ID: 2}})
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, []int{3, 1, 2}, []int{ordered[0].ID, ordered[1].ID, ordered[2].ID})
	assert.Equal(t, []string{"PATCH /api/apps/tasks/order"}, api.RequestLog())
}

func TestServerErrorCarriesBody(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.SetFailure(http.StatusInternalServerError)
	c := newTestClient(t, api)

	_, err := c.GetTasks(context.Background())
	var serverErr *backend.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.StatusCode)
	assert.Contains(t, serverErr.Body, "injected failure")
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.GetTasks(context.Background())
	var netErr *backend.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "get tasks", netErr.Op)
}

func TestContextCancellation(t *testing.T) {
	api := fakeapi.New(t, testToken)
	api.Block()
	c := newTestClient(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetTasks(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
