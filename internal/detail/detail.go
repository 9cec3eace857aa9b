// Package detail binds the selected task to an editable form and writes
// settled edits back through the store.
package detail

import (
	"context"
	"sync"
	"time"

	"taskdesk/backend"
	"taskdesk/internal/debounce"
	"taskdesk/internal/store"
	"taskdesk/internal/utils"
)

// Form mirrors the editable fields of a task
type Form struct {
	Title       string
	Description string
	Completed   bool
	ExpiryDate  string
}

// FormFor returns the form showing task. A nil task yields an empty form.
func FormFor(task *backend.Task) Form {
	if task == nil {
		return Form{}
	}
	return Form{
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.IsChecked,
		ExpiryDate:  task.ExpiryDate,
	}
}

// Option configures a Controller
type Option func(*Controller)

// WithDebounce sets the settle window for edits
func WithDebounce(wait time.Duration) Option {
	return func(c *Controller) {
		c.wait = wait
	}
}

// WithClock overrides the clock used by the overdue check
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller keeps a form in sync with the store's selection
type Controller struct {
	store *store.Store
	now   func() time.Time
	wait  time.Duration

	saver *debounce.Debouncer
	errs  chan error
	// changes signals the view that the task, form or list moved
	changes chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	task   *backend.Task
	form   Form
	tasks  []backend.Task
	active bool
	done   chan struct{}
}

// New creates a controller for s
func New(s *store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:   s,
		now:     time.Now,
		wait:    debounce.DefaultWait,
		errs:    make(chan error, 8),
		changes: make(chan struct{}, 1),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.saver = debounce.New(c.wait, c.save)
	return c
}

// Activate starts following the store until ctx is done. Pending edits are
// saved on teardown.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.ctx = ctx
	c.form = Form{}
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	tasksCh := c.store.SubscribeTasks(ctx)
	selectedCh := c.store.SubscribeSelected(ctx)

	go func() {
		defer close(done)
		for {
			select {
			case tasks, ok := <-tasksCh:
				if !ok {
					c.teardown()
					return
				}
				c.mu.Lock()
				c.tasks = tasks
				c.mu.Unlock()
				c.notify()
			case task, ok := <-selectedCh:
				if !ok {
					c.teardown()
					return
				}
				c.onSelected(task)
			}
		}
	}()
}

// Done is closed once the controller has torn down after Activate's context ended
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) teardown() {
	c.mu.Lock()
	c.ctx = context.WithoutCancel(c.ctx)
	c.mu.Unlock()

	c.saver.Flush()
	c.saver.Stop()
}

// onSelected patches the form without emitting an edit. A selection of the same
// task only refreshes the form when no edit is waiting to be saved.
func (c *Controller) onSelected(task *backend.Task) {
	c.mu.Lock()
	switching := c.task == nil || task == nil || c.task.ID != task.ID
	c.mu.Unlock()

	if switching {
		c.saver.Flush()
	}

	c.saver.Suspend()
	defer c.saver.Resume()

	c.mu.Lock()
	c.task = task
	if switching || !c.saver.Pending() {
		c.form = FormFor(task)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Changes signals that Task, Form or Tasks may have changed
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Errors delivers autosave failures. They are logged as well.
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// Task returns a copy of the task being edited, or nil
func (c *Controller) Task() *backend.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return nil
	}
	t := *c.task
	return &t
}

// Form returns the current form values
func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Tasks returns the last list received from the store
func (c *Controller) Tasks() []backend.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Task(nil), c.tasks...)
}

// Edit replaces the form and schedules a save
func (c *Controller) Edit(form Form) {
	c.mu.Lock()
	if c.task == nil {
		c.mu.Unlock()
		return
	}
	changed := c.form != form
	c.form = form
	c.mu.Unlock()

	if changed {
		c.saver.Trigger()
	}
}

// ToggleCompleted flips the completion flag through the same debounced path
func (c *Controller) ToggleCompleted() {
	form := c.Form()
	form.Completed = !form.Completed
	c.Edit(form)
}

// Flush saves pending edits immediately
func (c *Controller) Flush() {
	c.saver.Flush()
}

// Pending reports whether an edit is waiting for the settle window
func (c *Controller) Pending() bool {
	return c.saver.Pending()
}

// save merges the form into the task and pushes it to the store
func (c *Controller) save() {
	c.mu.Lock()
	if c.task == nil {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	merged := *c.task
	form := c.form
	c.mu.Unlock()

	expiry, err := backend.NormalizeExpiry(form.ExpiryDate)
	if err != nil {
		c.report(err)
		return
	}
	merged.Title = form.Title
	merged.Description = form.Description
	merged.IsChecked = form.Completed
	merged.ExpiryDate = expiry

	if _, err := c.store.UpdateTask(ctx, merged.ID, merged); err != nil {
		c.report(err)
		return
	}
	utils.Debugf("Saved task %s", merged)
}

func (c *Controller) report(err error) {
	utils.Errorf("Failed to save task: %v", err)
	select {
	case c.errs <- err:
	default:
		utils.Warnf("Dropping autosave error, nobody is listening")
	}
}

// IsOverdue reports whether the edited task's expiry day is before today
func (c *Controller) IsOverdue() bool {
	task := c.Task()
	if task == nil {
		return false
	}
	return task.IsOverdue(c.now())
}

// NextTarget returns the id to show after deleting id: the following task, the
// previous one when id is last, or nil when id is the only task or absent.
func NextTarget(tasks []backend.Task, id int) *int {
	idx := backend.IndexOf(tasks, id)
	if idx < 0 || len(tasks) == 1 {
		return nil
	}
	next := idx + 1
	if idx == len(tasks)-1 {
		next = idx - 1
	}
	target := tasks[next].ID
	return &target
}

// Delete deletes the edited task and returns the id to navigate to.
// deleted is false when the server refused, in which case nothing should happen.
func (c *Controller) Delete(ctx context.Context) (next *int, deleted bool, err error) {
	task := c.Task()
	if task == nil {
		return nil, false, nil
	}

	c.saver.Cancel()
	next = NextTarget(c.store.Tasks(), task.ID)

	deleted, err = c.store.DeleteTask(ctx, task.ID)
	if err != nil || !deleted {
		return nil, false, err
	}
	return next, true, nil
}
