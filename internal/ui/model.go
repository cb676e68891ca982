// ABOUTME: Bubbletea model for the daemon's graph monitor
// ABOUTME: Polls a registry snapshot every second and renders endpoints and connections
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// refreshInterval is how often the graph is re-read
const refreshInterval = time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// SnapshotFunc returns the current graph
type SnapshotFunc func() hound.Graph

// Model is the monitor state
type Model struct {
	name      string
	addr      string
	startTime time.Time
	snapshot  SnapshotFunc
	graph     hound.Graph
	quitting  bool
}

type tickMsg time.Time

// NewModel creates a monitor reading from snapshot
func NewModel(name, addr string, snapshot SnapshotFunc) Model {
	m := Model{
		name:      name,
		addr:      addr,
		startTime: time.Now(),
		snapshot:  snapshot,
	}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	if m.snapshot != nil {
		m.graph = m.snapshot()
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.refresh()
		return m, tickEvery()
	}
	return m, nil
}

// View renders the graph
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Hound Sound Server"))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(headerStyle.Render(label + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.name)
	field("Control", m.addr)
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Sources (%d)", len(m.graph.Sources))))
	b.WriteString("\n")
	writeEndpoints(&b, m.graph.Sources)

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Sinks (%d)", len(m.graph.Sinks))))
	b.WriteString("\n")
	writeEndpoints(&b, m.graph.Sinks)

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Connections (%d)", len(m.graph.Connections))))
	b.WriteString("\n")
	if len(m.graph.Connections) == 0 {
		b.WriteString(valueStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, c := range m.graph.Connections {
		fmt.Fprintf(&b, "  %s -> %s", c.Source, c.Sink)
		b.WriteString(valueStyle.Render(fmt.Sprintf(" (%d frames queued)", c.BufferedFrames)))
		b.WriteString("\n")
	}

	if len(m.graph.Contexts) > 0 {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Contexts (%d)", len(m.graph.Contexts))))
		b.WriteString("\n")
		for _, c := range m.graph.Contexts {
			fmt.Fprintf(&b, "  %s", c.Name)
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d streams)", c.Kind, c.Streams)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press 'q' or Ctrl+C to quit"))
	return b.String()
}

func writeEndpoints(b *strings.Builder, endpoints []hound.EndpointInfo) {
	if len(endpoints) == 0 {
		b.WriteString(valueStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, e := range endpoints {
		fmt.Fprintf(b, "  %s", e.Name)
		b.WriteString(valueStyle.Render(fmt.Sprintf(" [%s] %s", e.Format, plural(e.Connections, "connection"))))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
