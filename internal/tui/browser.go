package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles for the browser screen.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(1)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("69")).
			Width(6)

	nameStyle = lipgloss.NewStyle().
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginLeft(1)
)

// Row is one discovered item shown in the browser.
type Row struct {
	// Source names the protocol that found the item: "mdns", "ssdp" or
	// "upnp".
	Source string

	// Name is the instance, host or device name.
	Name string

	// Type is the service or device type, if any.
	Type string

	// Location is an address or URL, if any.
	Location string
}

// key identifies a row for deduplication across announcements.
func (r Row) key() string {
	return r.Source + "\x00" + r.Name + "\x00" + r.Type
}

// RowMsg delivers a discovered item to the browser. Send it through the
// program returned by NewProgram.
type RowMsg Row

// browserKeyMap defines the key bindings of the browser screen.
type browserKeyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k browserKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k browserKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Quit}}
}

// Model is the browser screen state.
type Model struct {
	rows    []Row
	seen    map[string]struct{}
	spinner spinner.Model
	help    help.Model
	keys    browserKeyMap
	width   int
	height  int
	started time.Time
}

// NewModel returns an empty browser model.
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	keys := browserKeyMap{
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}

	return Model{
		seen:    make(map[string]struct{}),
		spinner: s,
		help:    help.New(),
		keys:    keys,
		started: time.Now(),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.rows = nil
			m.seen = make(map[string]struct{})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case RowMsg:
		row := Row(msg)
		if _, ok := m.seen[row.key()]; !ok {
			m.seen[row.key()] = struct{}{}
			m.rows = append(m.rows, row)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the browser screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lanprobe — network discovery"))
	b.WriteString("\n\n")

	elapsed := time.Since(m.started).Round(time.Second)
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s scanning for %s — %d found",
		m.spinner.View(), elapsed, len(m.rows))))
	b.WriteString("\n\n")

	visible := m.rows
	if m.height > 8 && len(visible) > m.height-8 {
		visible = visible[len(visible)-(m.height-8):]
	}

	for _, row := range visible {
		b.WriteString("  ")
		b.WriteString(sourceStyle.Render(row.Source))
		b.WriteString(" ")
		b.WriteString(nameStyle.Render(row.Name))

		var details []string
		if row.Type != "" {
			details = append(details, row.Type)
		}
		if row.Location != "" {
			details = append(details, row.Location)
		}
		if len(details) > 0 {
			b.WriteString(detailStyle.Render("  " + strings.Join(details, " • ")))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")

	return b.String()
}

// NewProgram wraps the model in a bubbletea program. Feed discoveries to
// it with program.Send(RowMsg{...}) from resolver callbacks.
func NewProgram() *tea.Program {
	return tea.NewProgram(NewModel())
}
