// Package hud renders the driver screen in a terminal.
package hud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/voice"
)

const (
	colorForeground = "#F8F8F2"
	colorCyan       = "#8BE9FD"
	colorGreen      = "#50FA7B"
	colorOrange     = "#FFB86C"
	colorPurple     = "#BD93F9"
	colorRed        = "#FF5555"
	colorComment    = "#6272A4"
)

const refreshInterval = 500 * time.Millisecond

// Screen is the driver screen as seen by the HUD.
type Screen interface {
	Snapshot() (model.DashboardSnapshot, bool)
	HandleCommand(command voice.Command)
	SubmitTranscript(transcript string) (voice.Command, bool, error)
	ToggleCamera() model.ConnectivityState
	Dismiss(id int64) bool
	CaptureToDisk(ctx context.Context) (model.CaptureSaved, error)
}

type styles struct {
	app, title, online, offline, clear, danger, help, spoken lipgloss.Style
	severity                                                 map[model.Severity]lipgloss.Style
}

func newStyles() styles {
	return styles{
		app: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(colorCyan)).
			Foreground(lipgloss.Color(colorForeground)),
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorPurple)).Bold(true),
		online:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)).Bold(true),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)).Bold(true),
		clear:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		danger:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true).Blink(true),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment)),
		spoken:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)).Italic(true),
		severity: map[model.Severity]lipgloss.Style{
			model.SeverityCritical: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color(colorRed)).
				Foreground(lipgloss.Color(colorRed)),
			model.SeverityWarning: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color(colorOrange)).
				Foreground(lipgloss.Color(colorOrange)),
			model.SeverityInfo: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color(colorCyan)).
				Foreground(lipgloss.Color(colorCyan)),
		},
	}
}

type tickMsg time.Time

type eventMsg model.Event

// Model is the Bubble Tea model of the driver HUD.
type Model struct {
	screen   Screen
	events   <-chan model.Event
	ctx      context.Context
	input    textinput.Model
	typing   bool
	snapshot model.DashboardSnapshot
	ready    bool
	spoken   string
	message  string
	styles   styles
}

func New(ctx context.Context, screen Screen, events <-chan model.Event) *Model {
	input := textinput.New()
	input.Placeholder = `say "status", "photo" or "camera"`
	input.CharLimit = 120
	input.Width = 40
	input.Prompt = "🎙  "
	input.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan))
	input.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorForeground))
	input.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment))

	m := &Model{
		screen: screen,
		events: events,
		ctx:    ctx,
		input:  input,
		styles: newStyles(),
	}
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, tick()
	case eventMsg:
		m.applyEvent(model.Event(msg))
		return m, m.waitForEvent()
	case tea.KeyMsg:
		if m.typing {
			return m.handleTyping(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // Default case forwards every other key to the input
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.stopTyping()
		return m, nil
	case tea.KeyEnter:
		transcript := strings.TrimSpace(m.input.Value())
		m.stopTyping()
		if transcript == "" {
			return m, nil
		}
		if _, _, err := m.screen.SubmitTranscript(transcript); err != nil {
			m.message = "Voice: " + err.Error()
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "v":
		m.typing = true
		m.input.Focus()
		return m, textinput.Blink
	case "s":
		m.screen.HandleCommand(voice.CommandStatus)
	case "t":
		state := m.screen.ToggleCamera()
		m.message = "Camera: " + state.Label()
	case "c":
		saved, err := m.screen.CaptureToDisk(m.ctx)
		if err != nil {
			m.message = "Capture failed: " + err.Error()
		} else {
			m.message = "Saved " + saved.Filename
		}
	case "d":
		if len(m.snapshot.Notifications) > 0 {
			m.screen.Dismiss(m.snapshot.Notifications[0].ID)
		}
	}
	m.refresh()
	return m, nil
}

func (m *Model) stopTyping() {
	m.typing = false
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) refresh() {
	if snapshot, ok := m.screen.Snapshot(); ok {
		m.snapshot = snapshot
		m.ready = true
	}
}

func (m *Model) applyEvent(event model.Event) {
	switch event.Type {
	case model.EventSpeak:
		if payload, ok := event.Payload.(map[string]string); ok {
			m.spoken = payload["text"]
		}
	case model.EventStatus:
		if payload, ok := event.Payload.(map[string]string); ok {
			m.message = payload["text"]
		}
	case model.EventCapture:
		if saved, ok := event.Payload.(model.CaptureSaved); ok {
			m.message = "Saved " + saved.Filename
		}
	}
	m.refresh()
}

func (m *Model) View() string {
	var content strings.Builder
	st := m.styles

	content.WriteString(st.title.Render("ADAS Driver HUD") + "\n\n")

	if !m.ready {
		content.WriteString(st.help.Render("Connecting to detection backend...") + "\n")
		return st.app.Render(content.String())
	}

	snap := m.snapshot
	badge := st.online.Render("● " + snap.Connectivity.Label())
	if !snap.SourceOnline {
		badge = st.offline.Render("● Offline / local camera")
	}
	content.WriteString(badge + "   " + st.help.Render("video: "+string(snap.DisplayMode)) + "\n\n")

	if snap.Stats.ActiveWarnings > 0 {
		content.WriteString(st.danger.Render("⚠️  OBSTACLE DETECTED") + "\n")
	} else {
		content.WriteString(st.clear.Render("PATH CLEAR") + "\n")
	}

	switch {
	case len(snap.Alerts) > 0:
		latest := snap.Alerts[0]
		content.WriteString(fmt.Sprintf("Latest: %s at %.1fm (%.0f%%)\n", latest.ObjectClass, latest.Distance, latest.Confidence*100))
	case snap.EmptyState == model.EmptyServerOffline:
		content.WriteString(st.help.Render("Server offline, no alerts available") + "\n")
	default:
		content.WriteString(st.help.Render("No alerts") + "\n")
	}

	for _, n := range snap.Notifications {
		style, ok := st.severity[n.Severity]
		if !ok {
			style = st.severity[model.SeverityInfo]
		}
		content.WriteString(style.Render(n.Title+" "+n.Message) + "\n")
	}

	if m.spoken != "" {
		content.WriteString(st.spoken.Render("🔊 "+m.spoken) + "\n")
	}
	if snap.Voice.Feedback != "" {
		content.WriteString(st.spoken.Render(snap.Voice.Feedback) + "\n")
	}
	if m.message != "" {
		content.WriteString(m.message + "\n")
	}

	content.WriteString("\n")
	if m.typing {
		content.WriteString(m.input.View() + "\n")
		content.WriteString(st.help.Render("enter: send • esc: cancel") + "\n")
	} else {
		content.WriteString(st.help.Render("v: voice • s: status • c: capture • t: camera • d: dismiss • q: quit") + "\n")
	}

	return st.app.Render(content.String())
}
