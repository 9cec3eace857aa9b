package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"taskdesk/internal/utils"
)

// tagsLabel starts the drawer line the tag panel is anchored to
const tagsLabel = "Tags:"

// rect is a screen region in cells
type rect struct {
	x, y, w, h int
}

func (r rect) contains(x, y int) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

func (m *Model) size() (int, int) {
	if m.width == 0 || m.height == 0 {
		return 80, 24
	}
	return m.width, m.height
}

func (m *Model) drawerWidth() int {
	width, _ := m.size()
	return width - width/3
}

// View renders the TUI
func (m *Model) View() string {
	width, height := m.size()

	// Overlay dialogs
	switch m.mode {
	case ModeSearch:
		return m.renderSearchDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	}

	view := m.renderMain(width, height)
	if m.mode == ModeTags {
		bounds := m.tagPanelBounds()
		view = overlay(view, m.renderTagPanel(), bounds.x, bounds.y)
	}
	return view
}

func (m *Model) renderMain(width, height int) string {
	var mainView string
	if m.ctrl != nil {
		listWidth := width / 3
		drawerWidth := width - listWidth
		listPane := m.listPaneStyle.Width(listWidth - 2).Height(height - 3).Render(m.renderListPane(listWidth - 4))
		drawerPane := m.drawerPaneStyle.Width(drawerWidth - 2).Height(height - 3).Render(m.renderDrawer(drawerWidth - 4))
		mainView = lipgloss.JoinHorizontal(lipgloss.Top, listPane, drawerPane)
	} else {
		mainView = m.listPaneStyle.Width(width - 2).Height(height - 3).Render(m.renderListPane(width - 4))
	}

	var b strings.Builder
	b.WriteString(mainView)
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderListPane(width int) string {
	var b strings.Builder
	if m.searching {
		b.WriteString("Search: " + m.query + "\n")
	} else {
		b.WriteString("Tasks\n")
	}
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	tasks := m.visible()
	if len(tasks) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	now := m.now()
	selectedID := 0
	if m.task != nil {
		selectedID = m.task.ID
	}

	for i, task := range tasks {
		cursor := " "
		if i == m.cursor && m.focus == FocusList {
			cursor = ">"
		}

		status := "[ ]"
		if task.IsChecked {
			status = "[✓]"
		}

		title := utils.TruncateString(task.Title, max(width-8, 8))
		switch {
		case task.IsChecked:
			title = m.completedStyle.Render(title)
		case task.ID == selectedID, i == m.cursor && m.focus == FocusList:
			title = m.selectedStyle.Render(title)
		}

		overdue := " "
		if task.IsOverdue(now) {
			overdue = m.overdueStyle.Render("!")
		}

		b.WriteString(cursor + " " + status + overdue + title + "\n")
	}

	return b.String()
}

func (m *Model) renderDrawer(width int) string {
	task := m.task
	if task == nil {
		return "Loading...\n"
	}

	var b strings.Builder
	heading := "Task " + strconv.Itoa(task.ID)
	completed := "[ ] Completed"
	if m.form.Completed {
		completed = "[✓] Completed"
	}
	padding := width - lipgloss.Width(heading) - lipgloss.Width(completed)
	b.WriteString(heading + strings.Repeat(" ", max(padding, 1)) + completed + "\n")
	b.WriteString(strings.Repeat("─", max(width, 1)) + "\n")

	b.WriteString(m.fieldLabel("Title", FieldTitle) + "\n")
	b.WriteString(m.title.View() + "\n\n")

	b.WriteString(m.fieldLabel("Description", FieldDescription) + "\n")
	b.WriteString(m.description.View() + "\n\n")

	b.WriteString(m.fieldLabel("Expiry date", FieldExpiry) + "\n")
	expiry := m.expiry.View()
	if task.IsOverdue(m.now()) {
		expiry += "  " + m.overdueStyle.Render("Overdue")
	}
	b.WriteString(expiry + "\n")
	if formatted := utils.FormatExpiry(task.ExpiryDate); formatted != "" {
		b.WriteString(m.labelStyle.Render("Saved: "+formatted) + "\n")
	}
	b.WriteString("\n")

	tags := "none"
	if found := tagsIn(m.form.Description); len(found) > 0 {
		tags = "#" + strings.Join(found, " #")
	}
	b.WriteString(m.labelStyle.Render(tagsLabel+" "+tags) + "\n\n")

	b.WriteString(m.helpStyle.Render("ctrl+t complete  ctrl+d delete  ctrl+l tags  esc close"))
	return b.String()
}

func (m *Model) fieldLabel(label string, f Field) string {
	if m.focus == FocusDrawer && m.field == f {
		return m.selectedStyle.Render(label)
	}
	return m.labelStyle.Render(label)
}

func (m *Model) renderStatusBar() string {
	width, _ := m.size()
	left := "/" + m.path

	right := "q:quit  ?:help"
	if m.ctrl != nil && m.focus == FocusDrawer {
		right = "esc:close  ctrl+c:quit"
	}

	middle := ""
	if m.status != "" {
		room := width - lipgloss.Width(left) - lipgloss.Width(right) - 4
		middle = "  " + utils.TruncateString(m.status, max(room, 1))
	}

	padding := width - lipgloss.Width(left) - lipgloss.Width(middle) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	style := m.statusBarStyle
	if m.statusErr {
		style = m.errorStyle
	}
	return style.Width(width).Render(left + middle + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderSearchDialog() string {
	dialog := m.dialogStyle.Render(
		"Search Tasks\n\n" +
			m.searchInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: search  Esc: cancel"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderTagPanel() string {
	var b strings.Builder
	b.WriteString("Tags\n\n")
	b.WriteString(m.tagInput.View() + "\n\n")

	tags := m.filteredTags()
	if len(tags) == 0 {
		if query := normalizeTag(m.tagInput.Value()); query != "" {
			b.WriteString("Enter: add #" + query + "\n")
		} else {
			b.WriteString("No tags yet\n")
		}
	}
	for i, tag := range tags {
		cursor := " "
		if i == m.tagCursor {
			cursor = ">"
		}
		mark := "[ ]"
		if hasTag(m.description.Value(), tag) {
			mark = "[x]"
		}
		line := cursor + " " + mark + " #" + tag
		if i == m.tagCursor {
			line = m.selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + m.helpStyle.Render("Enter: toggle  Esc: close"))
	return m.dialogStyle.Render(b.String())
}

// tagPanelBounds returns where the tag panel is drawn: under the drawer's
// Tags line, or above it when the panes have no room below.
func (m *Model) tagPanelBounds() rect {
	width, height := m.size()
	panel := m.renderTagPanel()
	w, h := lipgloss.Width(panel), lipgloss.Height(panel)

	x, row := m.tagTrigger()
	y := row + 1
	if y+h > height-1 {
		y = row - h
	}
	x = min(x, width-w)
	return rect{x: max(x, 0), y: max(y, 0), w: w, h: h}
}

// tagTrigger returns the screen cell where the drawer's Tags line starts
func (m *Model) tagTrigger() (int, int) {
	width, _ := m.size()
	// pane border and padding
	x := width/3 + 2
	if m.ctrl == nil {
		return x, 1
	}
	for i, line := range strings.Split(m.renderDrawer(m.drawerWidth()-4), "\n") {
		if strings.HasPrefix(ansi.Strip(line), tagsLabel) {
			return x, i + 1
		}
	}
	return x, 1
}

// overlay draws fg over bg with its top-left corner at x, y
func overlay(bg, fg string, x, y int) string {
	lines := strings.Split(bg, "\n")
	for i, line := range strings.Split(fg, "\n") {
		row := y + i
		if row < 0 || row >= len(lines) {
			continue
		}
		left := ansi.Truncate(lines[row], x, "")
		if w := ansi.StringWidth(left); w < x {
			left += strings.Repeat(" ", x-w)
		}
		right := ansi.TruncateLeft(lines[row], x+ansi.StringWidth(line), "")
		lines[row] = left + "\x1b[0m" + line + "\x1b[0m" + right
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Task list:
  j/↓    Move down
  k/↑    Move up
  Enter  Open task
  n      New task
  /      Search tasks
  r      Refresh
  Tab    Back to the open task

Open task:
  Tab        Next field
  ctrl+t     Toggle completed
  ctrl+d     Delete task (with confirm)
  ctrl+l     Tags
  ctrl+n/p   Next/previous task
  ctrl+w     Back to the list
  Esc        Close

General:
  ?      Show this help
  q      Quit

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "Delete this task?"
	if m.ctrl != nil {
		if task := m.ctrl.Task(); task != nil {
			title = "Delete " + strconv.Quote(task.Title) + "?"
		}
	}
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	width, height := m.size()

	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := lipgloss.Width(dialog)

	topPad := max((height-dialogHeight)/2, 0)
	leftPad := max((width-dialogWidth)/2, 0)

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
