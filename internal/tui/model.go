// Package tui is a live terminal monitor that drives an engine one cycle per
// frame and shows its tasks, counters, and lifecycle history.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/cadence/internal/config"
	"github.com/aristath/cadence/internal/engine"
	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/scheduler"
)

// DefaultFrame paces the monitor when the kernel is configured unpaced.
const DefaultFrame = 50 * time.Millisecond

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneStats
)

// frameMsg asks the model to run one cycle.
type frameMsg time.Time

// Model is the root Bubble Tea model for the monitor.
type Model struct {
	engine       *engine.Engine
	taskPane     TaskPaneModel
	statsPane    StatsPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	feed         <-chan scheduler.TaskEvent
	frame        time.Duration
	paused       bool
	lastErr      error
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a monitor for eng. It subscribes to lifecycle events on the
// bus system channel.
func New(eng *engine.Engine, cfg *config.Config, globalPath, projectPath string) Model {
	frame := cfg.Kernel.TickInterval
	if frame <= 0 {
		frame = DefaultFrame
	}
	m := Model{
		engine:       eng,
		taskPane:     NewTaskPaneModel(),
		statsPane:    NewStatsPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneTasks,
		feed:         Subscribe(eng.Bus(), 256),
		frame:        frame,
	}
	m.refresh()
	m.updateFocusStates()
	return m
}

// Subscribe connects a buffered feed of lifecycle events to the bus system
// channel. Events are dropped while the feed is full.
func Subscribe(bus *events.Bus, size int) <-chan scheduler.TaskEvent {
	feed := make(chan scheduler.TaskEvent, size)
	_ = bus.Connect(bus.SystemChannel(), events.NewActor("Monitor", func(_ string, e events.Event) {
		if te, ok := events.As[scheduler.TaskEvent](e); ok {
			select {
			case feed <- te:
			default:
			}
		}
	}))
	return feed
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(nextFrame(m.frame), waitForEvent(m.feed))
}

func nextFrame(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// waitForEvent returns a command that waits for the next lifecycle event.
func waitForEvent(feed <-chan scheduler.TaskEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-feed
		if !ok {
			return nil
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyPause:
			m.paused = !m.paused

		case KeyStep:
			if m.paused {
				m.step()
			}

		case KeySuspend:
			m.toggleSelected()

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneStats
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case frameMsg:
		if !m.paused {
			m.step()
		}
		if m.engine.Finished() {
			m.quitting = true
			return m, tea.Quit
		}
		cmds = append(cmds, nextFrame(m.frame))

	case scheduler.TaskEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.feed))

	default:
		// Form internals (cursor blink, etc.)
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// step runs one engine cycle and refreshes every pane.
func (m *Model) step() {
	m.lastErr = m.engine.Step()
	m.refresh()
}

func (m *Model) refresh() {
	tasks := m.engine.Snapshot()
	m.taskPane.SetTasks(tasks)

	stats := Stats{
		Ticks:     m.engine.Ticks(),
		FrameRate: m.engine.Clock().FrameRate(),
		LastError: m.lastErr,
	}
	stats.CountStates(tasks)
	bus := m.engine.Bus()
	for _, name := range bus.Channels() {
		if ch, ok := bus.Channel(name); ok {
			stats.Channels = append(stats.Channels, ChannelStats{
				Name:        name,
				Pending:     ch.Pending(),
				Subscribers: ch.Subscribers(),
			})
		}
	}
	m.statsPane, _ = m.statsPane.Update(stats)
}

// toggleSelected suspends the selected task when running and resumes it when paused.
func (m *Model) toggleSelected() {
	sel := m.taskPane.Selected()
	if sel.ID == 0 {
		return
	}
	// System tasks are rejected by the kernel outside a privilege window
	m.lastErr = m.engine.Do(func(k *scheduler.Kernel) error {
		if sel.State == scheduler.StatePaused {
			return k.ResumeTask(sel.ID)
		}
		return k.SuspendTask(sel.ID)
	})
	m.refresh()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.statsPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView(m.paused))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.statsPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.statsPane.SetFocused(m.focusedPane == PaneStats)
}
