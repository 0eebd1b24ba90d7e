package cli

import (
	"fmt"
	"io"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxreel/voxreel-agent/internal/export"
)

const (
	defaultBarWidth = 40
	maxWarnings     = 5
)

type eventMsg export.Event

type streamClosedMsg struct{}

// waitForEvent reads the next export event as a tea message.
func waitForEvent(ch <-chan export.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(e)
	}
}

// progressModel renders one export job until its terminal event.
type progressModel struct {
	title  string
	events <-chan export.Event
	cancel func() error

	stage      export.Stage
	percent    float64
	eta        float64
	message    string
	warnings   []string
	cancelling bool
	cancelErr  string
	final      *export.Event
	width      int
}

func newProgressModel(title string, events <-chan export.Event, cancel func() error) progressModel {
	return progressModel{
		title:   title,
		events:  events,
		cancel:  cancel,
		stage:   export.StageValidating,
		message: "starting",
	}
}

func (m progressModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancelling {
				return m, nil
			}
			m.cancelling = true
			if m.cancel != nil {
				if err := m.cancel(); err != nil {
					m.cancelErr = err.Error()
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		e := export.Event(msg)
		m.apply(e)
		if e.Terminal() {
			m.final = &e
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m *progressModel) apply(e export.Event) {
	m.stage = e.Stage
	if e.Percent > m.percent || e.Terminal() {
		m.percent = e.Percent
	}
	m.eta = e.ETASeconds
	if e.Level == export.LevelWarning && !e.Terminal() {
		m.warnings = append(m.warnings, e.Message)
		return
	}
	if e.Message != "" {
		m.message = e.Message
	}
}

func (m progressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	width := defaultBarWidth
	if m.width > 0 {
		width = min(defaultBarWidth, max(10, m.width-16))
	}
	b.WriteString(renderBar(m.percent, width))
	fmt.Fprintf(&b, " %5.1f%%", m.percent)
	if m.eta > 0 && !m.stage.IsTerminal() {
		b.WriteString(dimStyle.Render(" eta " + clock(m.eta)))
	}
	b.WriteString("\n")

	stage := textStyle.Render(stageLabel(m.stage))
	switch m.stage {
	case export.StageFailed:
		stage = errorStyle.Render(stageLabel(m.stage))
	case export.StageCancelled:
		stage = warnStyle.Render(stageLabel(m.stage))
	case export.StageCompleted:
		stage = okStyle.Render(stageLabel(m.stage))
	}
	fmt.Fprintf(&b, "%s  %s\n", stage, dimStyle.Render(m.message))

	shown := m.warnings
	if len(shown) > maxWarnings {
		shown = shown[len(shown)-maxWarnings:]
	}
	for _, w := range shown {
		b.WriteString(warnStyle.Render("! " + w))
		b.WriteString("\n")
	}

	switch {
	case m.cancelErr != "":
		b.WriteString(errorStyle.Render(m.cancelErr))
		b.WriteString("\n")
	case m.cancelling && m.final == nil:
		b.WriteString(dimStyle.Render("cancelling..."))
		b.WriteString("\n")
	case m.final == nil:
		b.WriteString(dimStyle.Render("ctrl+c to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

// renderBar draws a fixed-width bar for percent in [0,100].
func renderBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = math.Max(0, math.Min(100, percent))
	filled := int(math.Round(percent / 100 * float64(width)))
	return barStyle.Render(strings.Repeat("█", filled)) +
		trackStyle.Render(strings.Repeat("░", width-filled))
}

func stageLabel(s export.Stage) string {
	switch s {
	case export.StageGraphBuilding:
		return "building graph"
	case "":
		return "waiting"
	default:
		return string(s)
	}
}

// streamPlain prints one line per event and returns the terminal event,
// or nil when the stream closed without one.
func streamPlain(w io.Writer, events <-chan export.Event) *export.Event {
	for e := range events {
		level := ""
		switch e.Level {
		case export.LevelWarning:
			level = "warning: "
		case export.LevelError:
			level = "error: "
		}
		fmt.Fprintf(w, "[%5.1f%%] %-14s %s%s\n", e.Percent, e.Stage, level, e.Message)
		if e.Terminal() {
			final := e
			return &final
		}
	}
	return nil
}
