package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/qrcard/internal/batch"
)

// RecordStatus is the display state of one record.
type RecordStatus string

const (
	StatusRunning RecordStatus = "running"
	StatusWritten RecordStatus = "written"
	StatusFailed  RecordStatus = "failed"
)

// maxRecentFailures caps the failures listed below the counters.
const maxRecentFailures = 5

// BatchStartMsg announces how many records the batch will process.
type BatchStartMsg struct {
	Total int
}

// ProgressMsg reports a record changing state.
type ProgressMsg struct {
	Index    int
	Identity string
	Status   RecordStatus
	Location string      // Set when Status is StatusWritten.
	Stage    batch.Stage // Set when Status is StatusFailed.
	Reason   string      // Set when Status is StatusFailed.
}

// BatchDoneMsg signals that the batch completed.
type BatchDoneMsg struct {
	Report batch.Report
}

// BatchErrorMsg signals that the batch failed with a fatal error.
type BatchErrorMsg struct {
	Err error
}

func (BatchStartMsg) isDisplayEvent() {}
func (ProgressMsg) isDisplayEvent()   {}
func (BatchDoneMsg) isDisplayEvent()  {}
func (BatchErrorMsg) isDisplayEvent() {}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
)

// Model is the Bubble Tea model for batch progress display.
type Model struct {
	spinner    spinner.Model
	total      int
	succeeded  int
	failed     int
	current    string
	failures   []string // Most recent last, at most maxRecentFailures.
	done       bool
	aborted    bool
	err        error
	cancelFunc context.CancelFunc
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCancelFunc sets the function called when the user aborts the batch.
func WithCancelFunc(fn context.CancelFunc) ModelOption {
	return func(m *Model) { m.cancelFunc = fn }
}

// NewModel creates a Model waiting for the batch to start.
func NewModel(opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{spinner: s}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case BatchStartMsg:
		m.total = msg.Total
		return m, nil

	case ProgressMsg:
		switch msg.Status {
		case StatusRunning:
			m.current = msg.Identity
		case StatusWritten:
			m.succeeded++
		case StatusFailed:
			m.failed++
			m.failures = append(m.failures, fmt.Sprintf("%s [%s]: %s", msg.Identity, msg.Stage, msg.Reason))
			if len(m.failures) > maxRecentFailures {
				m.failures = m.failures[len(m.failures)-maxRecentFailures:]
			}
		}
		return m, nil

	case BatchDoneMsg:
		m.done = true
		m.current = ""
		return m, tea.Quit

	case BatchErrorMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Stop dispatching; keep rendering until the runner reports back.
			if m.cancelFunc != nil && !m.aborted {
				m.aborted = true
				m.cancelFunc()
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the counters, the record in flight, and recent failures.
func (m Model) View() string {
	var b strings.Builder

	processed := m.succeeded + m.failed
	indicator := m.spinner.View()
	if m.done {
		indicator = okStyle.Render("✓")
		if m.err != nil {
			indicator = failStyle.Render("✗")
		}
	}
	fmt.Fprintf(&b, "  %s Contact cards %d/%d", indicator, processed, m.total)
	if m.current != "" && !m.done {
		b.WriteString(dimStyle.Render("  " + m.current))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "    %s  %s\n",
		okStyle.Render(fmt.Sprintf("%d written", m.succeeded)),
		failStyle.Render(fmt.Sprintf("%d failed", m.failed)))

	if len(m.failures) > 0 {
		b.WriteString(dimStyle.Render("    recent failures:") + "\n")
		for _, f := range m.failures {
			fmt.Fprintf(&b, "      %s\n", f)
		}
	}

	if m.aborted && !m.done {
		b.WriteString(dimStyle.Render("\n  Stopping after in-flight records...") + "\n")
	}
	if m.done && m.err != nil {
		fmt.Fprintf(&b, "\n  Error: %s\n", m.err)
	}

	return b.String()
}
