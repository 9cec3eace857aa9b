// Package tui provides the terminal master/detail view for tasks.
package tui

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskdesk/backend"
	"taskdesk/internal/debounce"
	"taskdesk/internal/detail"
	"taskdesk/internal/router"
	"taskdesk/internal/store"
	"taskdesk/internal/utils"
)

// Focus indicates which pane has focus
type Focus int

const (
	FocusList Focus = iota
	FocusDrawer
)

// Field identifies a drawer input
type Field int

const (
	FieldTitle Field = iota
	FieldDescription
	FieldExpiry
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeHelp
	ModeConfirmDelete
	ModeTags
)

// flushTimeout bounds how long closing the drawer waits for the last save
const flushTimeout = 5 * time.Second

// Option configures a Model
type Option func(*Model)

// WithDebounce sets the autosave settle window
func WithDebounce(wait time.Duration) Option {
	return func(m *Model) {
		m.debounce = wait
	}
}

// WithStartPath sets the path navigated to on start
func WithStartPath(p string) Option {
	return func(m *Model) {
		m.startPath = p
	}
}

// WithRouter replaces the default router, which treats the user as signed in
func WithRouter(r *router.Router) Option {
	return func(m *Model) {
		m.router = r
	}
}

// WithReload makes every receive on ch reload the list from the store's snapshot
func WithReload(ch <-chan struct{}) Option {
	return func(m *Model) {
		m.reload = ch
	}
}

// WithClock overrides the clock used for overdue markers
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// Model represents the TUI state
type Model struct {
	store     *store.Store
	router    *router.Router
	ctx       context.Context
	cancel    context.CancelFunc
	now       func() time.Time
	debounce  time.Duration
	startPath string
	reload    <-chan struct{}
	tasksCh   <-chan []backend.Task

	// Data
	tasks     []backend.Task
	results   []backend.Task
	searching bool
	query     string

	// Navigation
	path   string
	cursor int
	focus  Focus
	mode   Mode

	// Drawer
	ctrl        *detail.Controller
	ctrlCancel  context.CancelFunc
	field       Field
	task        *backend.Task // task the inputs were last synced from
	form        detail.Form   // last form exchanged with the controller
	title       textinput.Model
	description textarea.Model
	expiry      textinput.Model

	// Tag panel
	tagInput  textinput.Model
	tagCursor int

	searchInput textinput.Model
	status      string
	statusErr   bool
	closed      bool

	// UI dimensions
	width  int
	height int

	// Styles
	listPaneStyle   lipgloss.Style
	drawerPaneStyle lipgloss.Style
	selectedStyle   lipgloss.Style
	completedStyle  lipgloss.Style
	overdueStyle    lipgloss.Style
	labelStyle      lipgloss.Style
	helpStyle       lipgloss.Style
	dialogStyle     lipgloss.Style
	statusBarStyle  lipgloss.Style
	errorStyle      lipgloss.Style
}

// Message types
type tasksMsg struct {
	tasks []backend.Task
}

type loadedMsg struct {
	err error
}

type openedMsg struct {
	path string
	task *backend.Task
	err  error
}

type createdMsg struct {
	task *backend.Task
	err  error
}

type deletedMsg struct {
	next    *int
	deleted bool
	err     error
}

type searchMsg struct {
	query string
	tasks []backend.Task
	err   error
}

type changedMsg struct {
	ctrl *detail.Controller
}

type saveErrMsg struct {
	ctrl *detail.Controller
	err  error
}

type reloadMsg struct{}

type reloadedMsg struct {
	err error
}

// New creates a new TUI model over s. The model stops following the store
// when ctx is done or the program quits.
func New(ctx context.Context, s *store.Store, opts ...Option) *Model {
	ctx, cancel := context.WithCancel(ctx)

	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 256

	description := textarea.New()
	description.Placeholder = "Description"
	description.ShowLineNumbers = false
	description.SetHeight(4)

	expiry := textinput.New()
	expiry.Placeholder = "YYYY-MM-DD"
	expiry.CharLimit = 64

	tagInput := textinput.New()
	tagInput.Placeholder = "Search tags..."
	tagInput.CharLimit = 64

	searchInput := textinput.New()
	searchInput.Placeholder = "Search..."
	searchInput.CharLimit = 256

	m := &Model{
		store:       s,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
		debounce:    debounce.DefaultWait,
		startPath:   router.PathTasks,
		title:       title,
		description: description,
		expiry:      expiry,
		tagInput:    tagInput,
		searchInput: searchInput,
		focus:       FocusList,
		mode:        ModeNormal,
		listPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		drawerPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		overdueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")),
		errorStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("203")),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.router == nil {
		m.router = router.New(func() bool { return true })
	}
	m.tasksCh = s.SubscribeTasks(ctx)
	return m
}

// Path returns the current navigation path
func (m *Model) Path() string {
	return m.path
}

// Mode returns the current input mode
func (m *Model) Mode() Mode {
	return m.mode
}

// Focus returns the pane that has focus
func (m *Model) Focus() Focus {
	return m.focus
}

// FocusedField returns the drawer input with the cursor
func (m *Model) FocusedField() Field {
	return m.field
}

// Status returns the status bar message
func (m *Model) Status() string {
	return m.status
}

// DrawerOpen reports whether the detail drawer is showing a task
func (m *Model) DrawerOpen() bool {
	return m.ctrl != nil
}

// Close saves pending edits and stops following the store. Safe to call twice.
func (m *Model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.closeDrawer()
	m.cancel()
}

// Init starts the subscriptions and navigates to the start path
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForTasks(), m.navigate(m.startPath)}
	if m.reload != nil {
		cmds = append(cmds, m.waitForReload())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// Commands
// =============================================================================

func (m *Model) waitForTasks() tea.Cmd {
	ch := m.tasksCh
	return func() tea.Msg {
		tasks, ok := <-ch
		if !ok {
			return nil
		}
		return tasksMsg{tasks}
	}
}

func (m *Model) waitForReload() tea.Cmd {
	ch, ctx := m.reload, m.ctx
	return func() tea.Msg {
		select {
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return reloadMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForChange(ctrl *detail.Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctrl.Changes():
			return changedMsg{ctrl}
		case <-ctrl.Done():
			return nil
		}
	}
}

func waitForSaveError(ctrl *detail.Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case err := <-ctrl.Errors():
			return saveErrMsg{ctrl, err}
		case <-ctrl.Done():
			return nil
		}
	}
}

func (m *Model) loadTasks() tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		_, err := s.ListTasks(ctx)
		return loadedMsg{err}
	}
}

func (m *Model) openTask(p string, id int) tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		task, err := s.GetTaskByID(ctx, id)
		return openedMsg{path: p, task: task, err: err}
	}
}

func (m *Model) createTask() tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		task, err := s.CreateTask(ctx)
		return createdMsg{task, err}
	}
}

func (m *Model) deleteTask() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	if ctrl == nil {
		return nil
	}
	return func() tea.Msg {
		next, deleted, err := ctrl.Delete(ctx)
		return deletedMsg{next, deleted, err}
	}
}

func (m *Model) searchTasks(query string) tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		tasks, err := s.SearchTasks(ctx, query)
		return searchMsg{query, tasks, err}
	}
}

func (m *Model) reloadTasks() tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		_, err := s.Reload(ctx)
		return reloadedMsg{err}
	}
}

// =============================================================================
// Navigation
// =============================================================================

// navigate resolves p against the route table and shows what it lands on
func (m *Model) navigate(p string) tea.Cmd {
	match, err := m.router.Resolve(p)
	if err != nil {
		m.setError(err)
		return nil
	}

	switch match.Route.Path {
	case router.PathTask:
		id, err := match.IntParam("id")
		if err != nil {
			m.setError(err)
			return nil
		}
		m.path = match.Path
		return m.openTask(match.Path, id)

	case router.PathTasks:
		m.path = match.Path
		m.closeDrawer()
		m.store.ClearSelection(m.ctx)
		if !m.store.Loaded() {
			return m.loadTasks()
		}
		return nil

	case router.PathSignIn:
		m.setError(utils.ErrNotLoggedIn())
		return nil
	}

	m.setStatus("Nothing to show at /" + match.Path)
	return nil
}

// openDrawer starts a detail controller following the store's selection
func (m *Model) openDrawer() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	ctrl := detail.New(m.store, detail.WithDebounce(m.debounce), detail.WithClock(m.now))
	ctrl.Activate(ctx)

	m.ctrl = ctrl
	m.ctrlCancel = cancel
	m.task = nil
	m.form = detail.Form{}
	m.setInputs(m.form)
	return tea.Batch(waitForChange(ctrl), waitForSaveError(ctrl))
}

// closeDrawer tears the controller down and waits for its final save
func (m *Model) closeDrawer() {
	if m.ctrl == nil {
		return
	}
	m.ctrlCancel()
	select {
	case <-m.ctrl.Done():
	case <-time.After(flushTimeout):
		utils.Warnf("Timed out saving the open task")
	}
	m.ctrl = nil
	m.ctrlCancel = nil
	m.task = nil
	m.focus = FocusList
	if m.mode == ModeTags || m.mode == ModeConfirmDelete {
		m.mode = ModeNormal
	}
	m.title.Blur()
	m.description.Blur()
	m.expiry.Blur()
}

// focusField moves the cursor to f
func (m *Model) focusField(f Field) tea.Cmd {
	m.field = f
	m.title.Blur()
	m.description.Blur()
	m.expiry.Blur()
	switch f {
	case FieldDescription:
		return m.description.Focus()
	case FieldExpiry:
		return m.expiry.Focus()
	default:
		return m.title.Focus()
	}
}

func (m *Model) setInputs(form detail.Form) {
	m.title.SetValue(form.Title)
	m.description.SetValue(form.Description)
	m.expiry.SetValue(form.ExpiryDate)
}

// syncForm patches the inputs when the controller's form moved
func (m *Model) syncForm() {
	m.task = m.ctrl.Task()
	form := m.ctrl.Form()
	if form == m.form {
		return
	}
	m.form = form
	m.setInputs(form)
}

// pushEdit sends the inputs to the controller when they differ from the last form
func (m *Model) pushEdit() {
	form := detail.Form{
		Title:       m.title.Value(),
		Description: m.description.Value(),
		Completed:   m.form.Completed,
		ExpiryDate:  m.expiry.Value(),
	}
	if form == m.form {
		return
	}
	m.form = form
	m.ctrl.Edit(form)
}

// visible returns the tasks shown in the list pane
func (m *Model) visible() []backend.Task {
	if m.searching {
		return m.results
	}
	return m.tasks
}

func (m *Model) clampCursor() {
	if n := len(m.visible()); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = describe(err)
	m.statusErr = true
}

// describe flattens an error and its suggestion into one status line
func describe(err error) string {
	var suggestion *utils.ErrorWithSuggestion
	if errors.As(utils.Explain(err), &suggestion) {
		return suggestion.Err.Error() + ". " + suggestion.Suggestion
	}
	return err.Error()
}

// =============================================================================
// Update
// =============================================================================

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.description.SetWidth(m.drawerWidth() - 6)
		return m, nil

	case tasksMsg:
		m.tasks = msg.tasks
		m.clampCursor()
		return m, m.waitForTasks()

	case loadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		return m, nil

	case openedMsg:
		return m.handleOpened(msg)

	case createdMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setStatus("Created task " + strconv.Itoa(msg.task.ID))
		return m, m.navigate(router.TaskPath(msg.task.ID))

	case deletedMsg:
		m.mode = ModeNormal
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		if !msg.deleted {
			m.setStatus("The server did not delete the task")
			return m, nil
		}
		m.setStatus("Task deleted")
		if msg.next == nil {
			return m, m.navigate(router.Relative(m.path, ".."))
		}
		return m, m.navigate(router.Relative(m.path, "..", strconv.Itoa(*msg.next)))

	case searchMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.searching = true
		m.query = msg.query
		m.results = msg.tasks
		m.cursor = 0
		return m, nil

	case changedMsg:
		if msg.ctrl != m.ctrl {
			return m, nil
		}
		m.syncForm()
		return m, waitForChange(msg.ctrl)

	case saveErrMsg:
		if msg.ctrl != m.ctrl {
			return m, nil
		}
		m.setError(msg.err)
		return m, waitForSaveError(msg.ctrl)

	case reloadMsg:
		return m, tea.Batch(m.reloadTasks(), m.waitForReload())

	case reloadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Close()
			return m, tea.Quit
		}

		switch m.mode {
		case ModeSearch:
			return m.handleSearchMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		case ModeTags:
			return m.handleTagMode(msg)
		}

		if m.focus == FocusDrawer && m.ctrl != nil {
			return m.handleDrawerKeys(msg)
		}
		return m.handleListKeys(msg)
	}

	return m.updateInputs(msg)
}

func (m *Model) handleOpened(msg openedMsg) (tea.Model, tea.Cmd) {
	if msg.path != m.path {
		return m, nil
	}
	if msg.err != nil {
		m.setError(msg.err)
		if errors.Is(msg.err, backend.ErrNotFound) {
			m.path = router.PathTasks
			m.closeDrawer()
		}
		return m, nil
	}

	var cmds []tea.Cmd
	if m.ctrl == nil {
		cmds = append(cmds, m.openDrawer())
	}
	if idx := backend.IndexOf(m.visible(), msg.task.ID); idx >= 0 {
		m.cursor = idx
	}
	m.focus = FocusDrawer
	cmds = append(cmds, m.focusField(FieldTitle), textinput.Blink)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.Close()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		tasks := m.visible()
		if m.cursor < len(tasks) {
			return m, m.navigate(router.TaskPath(tasks[m.cursor].ID))
		}
		return m, nil

	case "tab":
		if m.ctrl != nil {
			m.focus = FocusDrawer
			return m, m.focusField(m.field)
		}
		return m, nil

	case "n":
		return m, m.createTask()

	case "r":
		m.searching = false
		m.results = nil
		return m, m.loadTasks()

	case "/":
		m.mode = ModeSearch
		m.searchInput.Reset()
		m.searchInput.SetValue(m.query)
		m.searchInput.Focus()
		return m, textinput.Blink

	case "esc":
		if m.searching {
			m.searching = false
			m.results = nil
			m.query = ""
			m.clampCursor()
		}
		return m, nil

	case "?":
		m.mode = ModeHelp
		return m, nil
	}
	return m, nil
}

func (m *Model) handleDrawerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, m.navigate(router.Relative(m.path, ".."))

	case "tab":
		return m, m.focusField((m.field + 1) % 3)

	case "shift+tab":
		return m, m.focusField((m.field + 2) % 3)

	case "ctrl+w":
		m.focus = FocusList
		return m, nil

	case "ctrl+t":
		m.ctrl.ToggleCompleted()
		m.form = m.ctrl.Form()
		return m, nil

	case "ctrl+d":
		if m.ctrl.Task() != nil {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case "ctrl+l":
		m.mode = ModeTags
		m.tagCursor = 0
		m.tagInput.Reset()
		return m, m.tagInput.Focus()

	case "ctrl+n", "ctrl+p":
		return m, m.step(msg.String() == "ctrl+n")
	}

	return m.updateInputs(msg)
}

// step opens the task after or before the current one
func (m *Model) step(forward bool) tea.Cmd {
	task := m.ctrl.Task()
	if task == nil {
		return nil
	}
	tasks := m.visible()
	idx := backend.IndexOf(tasks, task.ID)
	if idx < 0 {
		return nil
	}
	if forward {
		idx++
	} else {
		idx--
	}
	if idx < 0 || idx >= len(tasks) {
		return nil
	}
	return m.navigate(router.Relative(m.path, "..", strconv.Itoa(tasks[idx].ID)))
}

// updateInputs feeds msg to the focused drawer input and pushes the result
func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.ctrl == nil || m.focus != FocusDrawer || m.mode != ModeNormal {
		return m, nil
	}

	var cmd tea.Cmd
	switch m.field {
	case FieldTitle:
		m.title, cmd = m.title.Update(msg)
	case FieldDescription:
		m.description, cmd = m.description.Update(msg)
	case FieldExpiry:
		m.expiry, cmd = m.expiry.Update(msg)
	}
	if _, ok := msg.(tea.KeyMsg); ok {
		m.pushEdit()
	}
	return m, cmd
}

func (m *Model) handleSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		query := m.searchInput.Value()
		if query == "" {
			m.searching = false
			m.results = nil
			m.query = ""
			m.clampCursor()
			return m, nil
		}
		return m, m.searchTasks(query)

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(_ tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeNormal
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return m, m.deleteTask()

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}
	return m, nil
}

func (m *Model) handleTagMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEsc:
		return m, m.closeTagPanel()

	case tea.KeyUp:
		if m.tagCursor > 0 {
			m.tagCursor--
		}
		return m, nil

	case tea.KeyDown:
		if m.tagCursor < len(m.filteredTags())-1 {
			m.tagCursor++
		}
		return m, nil

	case tea.KeyEnter:
		tag := m.tagInput.Value()
		if tags := m.filteredTags(); m.tagCursor < len(tags) {
			tag = tags[m.tagCursor]
		}
		tag = normalizeTag(tag)
		if tag == "" {
			return m, nil
		}
		m.description.SetValue(toggleTag(m.description.Value(), tag))
		m.pushEditFromPanel()
		return m, nil
	}

	m.tagInput, cmd = m.tagInput.Update(msg)
	m.tagCursor = 0
	return m, cmd
}

// pushEditFromPanel sends the description while the tag panel holds focus
func (m *Model) pushEditFromPanel() {
	form := m.form
	form.Description = m.description.Value()
	if form == m.form {
		return
	}
	m.form = form
	m.ctrl.Edit(form)
}

func (m *Model) closeTagPanel() tea.Cmd {
	m.mode = ModeNormal
	m.tagInput.Blur()
	return m.focusField(m.field)
}

func (m *Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.mode != ModeTags || msg.Action != tea.MouseActionPress {
		return m, nil
	}
	if !m.tagPanelBounds().contains(msg.X, msg.Y) {
		return m, m.closeTagPanel()
	}
	return m, nil
}
