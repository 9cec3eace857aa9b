// Package store owns the cached task list and the current selection.
package store

import (
	"context"
	"sync"
	"time"

	"taskdesk/backend"
	"taskdesk/internal/utils"
)

// Persister saves and restores a snapshot of the store between processes
type Persister interface {
	Save(ctx context.Context, tasks []backend.Task, selectedID int) error
	// Load returns ok=false when nothing has been saved yet
	Load(ctx context.Context) (tasks []backend.Task, selectedID int, ok bool, err error)
}

// Option configures a Store
type Option func(*Store)

// WithPersister snapshots the list and selection after every change
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithClock overrides the clock used for the seed task's expiry date
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store mediates every server call and keeps the cached list and selection.
// Mutators check the cache before calling the API and reconcile against the
// current list afterwards, so concurrent calls never clobber each other.
type Store struct {
	api       backend.TaskAPI
	persister Persister
	now       func() time.Time

	// mu serializes read-modify-write of the list and selection
	mu       sync.Mutex
	loaded   bool
	tasks    *Subject[[]backend.Task]
	selected *Subject[*backend.Task]
}

// New creates a store backed by api
func New(api backend.TaskAPI, opts ...Option) *Store {
	s := &Store{
		api:      api,
		now:      time.Now,
		tasks:    NewSubject([]backend.Task{}),
		selected: NewSubject[*backend.Task](nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// State access
// =============================================================================

// Tasks returns a copy of the cached list
func (s *Store) Tasks() []backend.Task {
	return cloneTasks(s.tasks.Value())
}

// Selected returns a copy of the selected task, or nil
func (s *Store) Selected() *backend.Task {
	return cloneTask(s.selected.Value())
}

// Loaded reports whether the list has been fetched or restored
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// SubscribeTasks streams the cached list, starting with the current one
func (s *Store) SubscribeTasks(ctx context.Context) <-chan []backend.Task {
	return s.tasks.Subscribe(ctx)
}

// SubscribeSelected streams the selection, starting with the current one
func (s *Store) SubscribeSelected(ctx context.Context) <-chan *backend.Task {
	return s.selected.Subscribe(ctx)
}

// Select makes task the selection. A nil task clears it.
func (s *Store) Select(ctx context.Context, task *backend.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected.Publish(cloneTask(task))
	s.persistLocked(ctx)
}

// ClearSelection clears the selection
func (s *Store) ClearSelection(ctx context.Context) {
	s.Select(ctx, nil)
}

// Restore loads the persisted snapshot, if any, into the store
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}

	tasks, selectedID, ok, err := s.persister.Load(ctx)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.tasks.Publish(cloneTasks(tasks))
	if idx := backend.IndexOf(tasks, selectedID); idx >= 0 {
		s.selected.Publish(cloneTask(&tasks[idx]))
	}
	utils.Debugf("Restored %d cached tasks", len(tasks))
	return true, nil
}

// Reload replaces the list with the persisted snapshot, e.g. after another
// process wrote it. The selection keeps its id; it is refreshed from the
// snapshot when still present there and left alone otherwise.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}

	tasks, _, ok, err := s.persister.Load(ctx)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.tasks.Publish(cloneTasks(tasks))
	if sel := s.selected.Value(); sel != nil {
		if idx := backend.IndexOf(tasks, sel.ID); idx >= 0 && tasks[idx] != *sel {
			s.selected.Publish(cloneTask(&tasks[idx]))
		}
	}
	utils.Debugf("Reloaded %d tasks from snapshot", len(tasks))
	return true, nil
}

// =============================================================================
// Server operations
// =============================================================================

// ListTasks fetches every task and replaces the cached list
func (s *Store) ListTasks(ctx context.Context) ([]backend.Task, error) {
	tasks, err := s.api.GetTasks(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.tasks.Publish(cloneTasks(tasks))
	s.persistLocked(ctx)
	utils.Debugf("Fetched %d tasks", len(tasks))
	return cloneTasks(tasks), nil
}

// SearchTasks queries the server. Results are not cached and may be nil.
func (s *Store) SearchTasks(ctx context.Context, query string) ([]backend.Task, error) {
	return s.api.SearchTasks(ctx, query)
}

// GetTaskByID looks the task up in the cached list and publishes it as the selection.
// The list is fetched first if it was never loaded. A miss clears the selection
// and returns a NotFoundError.
func (s *Store) GetTaskByID(ctx context.Context, id int) (*backend.Task, error) {
	if !s.Loaded() {
		if _, err := s.ListTasks(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.tasks.Value()
	idx := backend.IndexOf(tasks, id)
	if idx < 0 {
		s.selected.Publish(nil)
		s.persistLocked(ctx)
		return nil, &backend.NotFoundError{ID: id}
	}

	s.selected.Publish(cloneTask(&tasks[idx]))
	s.persistLocked(ctx)
	return cloneTask(&tasks[idx]), nil
}

// CreateTask posts the seed task and prepends the server's copy to the list
func (s *Store) CreateTask(ctx context.Context) (*backend.Task, error) {
	created, err := s.api.CreateTask(ctx, backend.SeedTask(s.now()))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.tasks.Value()
	next := make([]backend.Task, 0, len(current)+1)
	next = append(next, *created)
	next = append(next, current...)
	s.tasks.Publish(next)
	s.persistLocked(ctx)
	utils.Debugf("Created task %s", created)
	return cloneTask(created), nil
}

// UpdateTask sends task and replaces the cached entry with the server's copy.
// The selection is republished when it is the updated task.
func (s *Store) UpdateTask(ctx context.Context, id int, task backend.Task) (*backend.Task, error) {
	if backend.IndexOf(s.tasks.Value(), id) < 0 {
		return nil, &backend.NotFoundError{ID: id}
	}

	updated, err := s.api.UpdateTask(ctx, id, task)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneTasks(s.tasks.Value())
	if idx := backend.IndexOf(next, id); idx >= 0 {
		next[idx] = *updated
		s.tasks.Publish(next)
	} else {
		utils.Debugf("Task %d left the cache while being updated", id)
	}
	if sel := s.selected.Value(); sel != nil && sel.ID == id {
		s.selected.Publish(cloneTask(updated))
	}
	s.persistLocked(ctx)
	return cloneTask(updated), nil
}

// DeleteTask deletes the task and, when the server confirms, removes the first
// matching cache entry. A deleted selection is cleared.
func (s *Store) DeleteTask(ctx context.Context, id int) (bool, error) {
	if backend.IndexOf(s.tasks.Value(), id) < 0 {
		return false, &backend.NotFoundError{ID: id}
	}

	deleted, err := s.api.DeleteTask(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		utils.Warnf("Server refused to delete task %d", id)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.tasks.Value()
	if idx := backend.IndexOf(current, id); idx >= 0 {
		next := make([]backend.Task, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		s.tasks.Publish(next)
	}
	if sel := s.selected.Value(); sel != nil && sel.ID == id {
		s.selected.Publish(nil)
	}
	s.persistLocked(ctx)
	return true, nil
}

// UpdateTasksOrders sends a new ordering. The cached list is left untouched.
func (s *Store) UpdateTasksOrders(ctx context.Context, tasks []backend.Task) ([]backend.Task, error) {
	return s.api.UpdateTasksOrders(ctx, tasks)
}

// persistLocked writes the snapshot. Failures are logged; the snapshot is advisory.
func (s *Store) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	selectedID := 0
	if sel := s.selected.Value(); sel != nil {
		selectedID = sel.ID
	}
	if err := s.persister.Save(ctx, s.tasks.Value(), selectedID); err != nil {
		utils.Warnf("Failed to save task cache: %v", err)
	}
}

func cloneTasks(tasks []backend.Task) []backend.Task {
	out := make([]backend.Task, len(tasks))
	copy(out, tasks)
	return out
}

func cloneTask(task *backend.Task) *backend.Task {
	if task == nil {
		return nil
	}
	c := *task
	return &c
}
