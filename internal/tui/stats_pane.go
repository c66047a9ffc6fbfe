package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/cadence/internal/scheduler"
)

// Stats is one sample of kernel and bus counters.
type Stats struct {
	Ticks     uint64
	FrameRate float64
	Running   int
	Paused    int
	Stopped   int
	Removing  int
	Channels  []ChannelStats
	LastError error
}

// ChannelStats describes one bus channel.
type ChannelStats struct {
	Name        string
	Pending     int
	Subscribers int
}

// CountStates tallies task states into s.
func (s *Stats) CountStates(tasks []scheduler.TaskInfo) {
	s.Running, s.Paused, s.Stopped, s.Removing = 0, 0, 0, 0
	for _, t := range tasks {
		switch {
		case t.PendingRemoval:
			s.Removing++
		case t.State == scheduler.StateRunning:
			s.Running++
		case t.State == scheduler.StatePaused:
			s.Paused++
		default:
			s.Stopped++
		}
	}
}

// StatsPaneModel shows kernel counters and bus channels.
type StatsPaneModel struct {
	stats   Stats
	width   int
	height  int
	focused bool
}

// NewStatsPaneModel creates a new stats pane model.
func NewStatsPaneModel() StatsPaneModel {
	return StatsPaneModel{}
}

// Update handles messages for the stats pane.
func (m StatsPaneModel) Update(msg tea.Msg) (StatsPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case Stats:
		m.stats = msg
	}
	return m, nil
}

// View renders the stats pane.
func (m StatsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	s := m.stats

	var b strings.Builder

	title := StyleTitle.Render("Kernel")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Ticks:     %d\n", s.Ticks))
	b.WriteString(fmt.Sprintf("Rate:      %.1f/s\n", s.FrameRate))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStateRunning.Render(fmt.Sprintf("%d", s.Running))))
	b.WriteString(fmt.Sprintf("Paused:    %s\n", StyleStatePaused.Render(fmt.Sprintf("%d", s.Paused))))
	b.WriteString(fmt.Sprintf("Stopped:   %s\n", StyleStateStopped.Render(fmt.Sprintf("%d", s.Stopped))))
	b.WriteString(fmt.Sprintf("Removing:  %s\n", StyleStateRemoving.Render(fmt.Sprintf("%d", s.Removing))))
	b.WriteString("\n")

	// State bar
	total := s.Running + s.Paused + s.Stopped + s.Removing
	if total > 0 {
		barWidth := min(m.width-4, 40)
		runningWidth := (s.Running * barWidth) / total
		pausedWidth := (s.Paused * barWidth) / total
		removingWidth := (s.Removing * barWidth) / total
		stoppedWidth := barWidth - runningWidth - pausedWidth - removingWidth

		bar := StyleStateRunning.Render(strings.Repeat("=", max(0, runningWidth)))
		bar += StyleStatePaused.Render(strings.Repeat("-", max(0, pausedWidth)))
		bar += StyleStateRemoving.Render(strings.Repeat("!", max(0, removingWidth)))
		bar += StyleStateStopped.Render(strings.Repeat(".", max(0, stoppedWidth)))
		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n\n", bar, s.Running, total))
	}

	b.WriteString(StyleTitle.Render("Channels"))
	b.WriteString("\n")
	for _, c := range s.Channels {
		b.WriteString(fmt.Sprintf("%-16s pending %-4d subscribers %d\n", c.Name, c.Pending, c.Subscribers))
	}

	if s.LastError != nil {
		b.WriteString("\n")
		b.WriteString(StyleError.Render(s.LastError.Error()))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *StatsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StatsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
