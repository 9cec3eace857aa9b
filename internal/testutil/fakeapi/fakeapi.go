// Package fakeapi provides an in-memory tasks API server for tests.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskdesk/backend"
)

// Server simulates the tasks REST API
type Server struct {
	server     *httptest.Server
	tasks      []backend.Task
	nextID     int
	token      string
	mu         sync.Mutex
	requestLog []string
	requestIDs []string

	failStatus   int
	deleteResult *bool
	emptyBodies  bool
	block        chan struct{}
}

// New starts a fake API. When token is non-empty every request must carry it as a bearer token.
// The server is closed when the test finishes.
func New(t testing.TB, token string) *Server {
	t.Helper()

	s := &Server{
		tasks:      []backend.Task{},
		nextID:     1,
		token:      token,
		requestLog: []string{},
	}
	s.server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.inject)

			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.createTask)
			r.Put("/tasks/{id}", s.updateTask)
			r.Delete("/tasks/{id}", s.deleteTask)
			r.Get("/apps/tasks/search", s.searchTasks)
			r.Patch("/apps/tasks/order", s.orderTasks)
		})
	})
	return r
}

// Close shuts the server down
func (s *Server) Close() {
	s.mu.Lock()
	if s.block != nil {
		close(s.block)
		s.block = nil
	}
	s.mu.Unlock()
	s.server.Close()
}

// URL returns the base URL of the server
func (s *Server) URL() string {
	return s.server.URL
}

// Seed replaces the stored tasks. Tasks without an id get one assigned.
func (s *Server) Seed(tasks ...backend.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make([]backend.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.ID == 0 {
			task.ID = s.nextID
		}
		if task.ID >= s.nextID {
			s.nextID = task.ID + 1
		}
		s.tasks = append(s.tasks, task)
	}
}

// Tasks returns a copy of the stored tasks
func (s *Server) Tasks() []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Task{}, s.tasks...)
}

// SetFailure makes every API request answer with status. Zero clears it.
func (s *Server) SetFailure(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// SetDeleteResult forces the boolean returned by DELETE without touching storage
func (s *Server) SetDeleteResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteResult = &ok
}

// SetEmptyBodies makes PUT and DELETE answer 204 without a body
func (s *Server) SetEmptyBodies(empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyBodies = empty
}

// Block holds every API request until Unblock is called
func (s *Server) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block == nil {
		s.block = make(chan struct{})
	}
}

// Unblock releases held requests
func (s *Server) Unblock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block != nil {
		close(s.block)
		s.block = nil
	}
}

// RequestLog returns "METHOD /path?query" for every request received
func (s *Server) RequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requestLog...)
}

// RequestIDs returns the X-Request-ID headers received, in order
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requestIDs...)
}

// CountRequests returns how many logged requests start with prefix, e.g. "DELETE "
func (s *Server) CountRequests(prefix string) int {
	n := 0
	for _, entry := range s.RequestLog() {
		if strings.HasPrefix(entry, prefix) {
			n++
		}
	}
	return n
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		s.mu.Lock()
		s.requestLog = append(s.requestLog, entry)
		s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failStatus
		block := s.block
		s.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, `{"error":"injected failure"}`, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tasks())
}

func (s *Server) searchTasks(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))

	matches := []backend.Task{}
	for _, task := range s.Tasks() {
		if strings.Contains(strings.ToLower(task.Title), query) ||
			strings.Contains(strings.ToLower(task.Description), query) {
			matches = append(matches, task)
		}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var task backend.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	task.ID = s.nextID
	s.nextID++
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return
	}

	var task backend.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	task.ID = id

	s.mu.Lock()
	idx := backend.IndexOf(s.tasks, id)
	if idx >= 0 {
		s.tasks[idx] = task
	}
	empty := s.emptyBodies
	s.mu.Unlock()

	if idx < 0 {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	if empty {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	var deleted bool
	if s.deleteResult != nil {
		deleted = *s.deleteResult
	} else if idx := backend.IndexOf(s.tasks, id); idx >= 0 {
		s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
		deleted = true
	}
	empty := s.emptyBodies
	s.mu.Unlock()

	if empty {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) orderTasks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tasks []backend.Task `json:"tasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	reordered := make([]backend.Task, 0, len(s.tasks))
	seen := make(map[int]bool)
	for _, t := range body.Tasks {
		if idx := backend.IndexOf(s.tasks, t.ID); idx >= 0 && !seen[t.ID] {
			reordered = append(reordered, s.tasks[idx])
			seen[t.ID] = true
		}
	}
	for _, t := range s.tasks {
		if !seen[t.ID] {
			reordered = append(reordered, t)
		}
	}
	s.tasks = reordered
	out := append([]backend.Task{}, reordered...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}
