package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/cadence/internal/scheduler"
)

const historyLimit = 200

// TaskPaneModel lists registered tasks and shows the lifecycle history of
// the selected one in a scrollable viewport.
type TaskPaneModel struct {
	tasks       []scheduler.TaskInfo
	history     map[scheduler.TaskID][]string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		history:  make(map[scheduler.TaskID][]string),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.tasks)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case scheduler.TaskEvent:
		line := fmt.Sprintf("tick %-6d %-9s %s", msg.Tick, msg.Kind, msg.Timestamp.Format("15:04:05.000"))
		h := append(m.history[msg.ID], line)
		if len(h) > historyLimit {
			h = h[len(h)-historyLimit:]
		}
		m.history[msg.ID] = h
		if m.Selected().ID == msg.ID {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// SetTasks replaces the task list, keeping the selection on the same task
// when it is still registered.
func (m *TaskPaneModel) SetTasks(tasks []scheduler.TaskInfo) {
	selected := m.Selected().ID
	m.tasks = tasks
	m.selectedIdx = 0
	for i, t := range tasks {
		if t.ID == selected {
			m.selectedIdx = i
			break
		}
	}
	m.updateViewportContent()
}

// Selected returns the selected task, or the zero value when the list is empty.
func (m TaskPaneModel) Selected() scheduler.TaskInfo {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.tasks) {
		return m.tasks[m.selectedIdx]
	}
	return scheduler.TaskInfo{}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := m.listWidth()
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) listWidth() int {
	return max(30, m.width/2)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(StyleStateStopped.Render("No tasks"))
	}
	for i, t := range m.tasks {
		name := t.Name
		if t.RunsOnThread {
			name += " [thread]"
		}
		if len(name) > width-18 {
			name = name[:max(0, width-21)] + "..."
		}
		if t.Type == scheduler.TaskSystem {
			name = StyleSystem.Render(name)
		}

		line := fmt.Sprintf("%s %-4d %-10s %s", StateIcon(t), t.ID, t.Order, name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StateIcon returns a styled state indicator for a task.
func StateIcon(t scheduler.TaskInfo) string {
	if t.PendingRemoval {
		return StyleStateRemoving.Render("✗")
	}
	switch t.State {
	case scheduler.StateRunning:
		return StyleStateRunning.Render("●")
	case scheduler.StatePaused:
		return StyleStatePaused.Render("‖")
	default:
		return StyleStateStopped.Render("○")
	}
}

func (m *TaskPaneModel) updateViewportContent() {
	t := m.Selected()
	if t.ID == 0 {
		m.viewport.SetContent("No task selected")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (id %d, %s, %s)\n", t.Name, t.ID, t.Type, t.State)
	if len(t.Dependencies) > 0 {
		deps := make([]string, len(t.Dependencies))
		for i, d := range t.Dependencies {
			deps[i] = fmt.Sprint(d)
		}
		fmt.Fprintf(&b, "depends on: %s\n", strings.Join(deps, ", "))
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(m.history[t.ID], "\n"))

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	viewportWidth := m.width - m.listWidth() - 4
	viewportHeight := m.height - 4 // account for borders

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
