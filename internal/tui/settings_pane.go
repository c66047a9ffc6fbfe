package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/cadence/internal/config"
	"github.com/aristath/cadence/internal/logging"
)

// SettingsPaneModel manages the settings form overlay. Saved settings apply
// to the next run; the running engine keeps its configuration.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings
	saveTarget     string
	tickInterval   string
	sendEvents     bool
	faultThreshold string
	logLevel       string
	journalEnabled bool
	journalPath    string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.saveTarget = "project"
	m.tickInterval = m.config.Kernel.TickInterval.String()
	m.sendEvents = m.config.Kernel.SendEvents
	m.faultThreshold = strconv.FormatUint(uint64(m.config.Kernel.FaultThreshold), 10)
	m.logLevel = m.config.Logging.Level
	m.journalEnabled = m.config.Journal.Enabled
	m.journalPath = m.config.Journal.Path
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return config.ErrNegativeInterval
	}
	return nil
}

func validateThreshold(s string) error {
	_, err := strconv.ParseUint(s, 10, 32)
	return err
}

func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project ("+m.projectPath+")", "project"),
					huh.NewOption("Global ("+m.globalPath+")", "global"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("tickInterval").
				Title("Tick Interval").
				Value(&m.tickInterval).
				Placeholder("10ms").
				Validate(validateDuration),

			huh.NewConfirm().
				Key("sendEvents").
				Title("Emit lifecycle events").
				Value(&m.sendEvents),

			huh.NewInput().
				Key("faultThreshold").
				Title("Fault Threshold (0 disables)").
				Value(&m.faultThreshold).
				Placeholder("0").
				Validate(validateThreshold),
		).Title("Kernel"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.logLevel),

			huh.NewConfirm().
				Key("journalEnabled").
				Title("Journal lifecycle events").
				Value(&m.journalEnabled),

			huh.NewInput().
				Key("journalPath").
				Title("Journal Path").
				Value(&m.journalPath).
				Placeholder(".cadence/journal.db"),
		).Title("Logging and Journal"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save copies form values into a copy of the config, validates, and writes it.
func (m *SettingsPaneModel) save() error {
	next := *m.config
	if err := m.applyFields(&next); err != nil {
		return err
	}
	if err := config.Validate(&next); err != nil {
		return err
	}

	targetPath := m.globalPath
	if m.saveTarget == "project" {
		targetPath = m.projectPath
	}
	if err := config.Save(&next, targetPath); err != nil {
		return err
	}
	*m.config = next
	logging.Component("tui").Infof("settings saved to %s", targetPath)
	return nil
}

func (m *SettingsPaneModel) applyFields(cfg *config.Config) error {
	d, err := time.ParseDuration(m.tickInterval)
	if err != nil {
		return fmt.Errorf("tick interval: %w", err)
	}
	threshold, err := strconv.ParseUint(m.faultThreshold, 10, 32)
	if err != nil {
		return fmt.Errorf("fault threshold: %w", err)
	}
	cfg.Kernel.TickInterval = d
	cfg.Kernel.SendEvents = m.sendEvents
	cfg.Kernel.FaultThreshold = uint32(threshold)
	cfg.Logging.Level = m.logLevel
	cfg.Journal.Enabled = m.journalEnabled
	cfg.Journal.Path = m.journalPath
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleError.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it rebuilds the form
// from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
