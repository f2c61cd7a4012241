package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [prefix]",
		Short: "Watch pins, parameters, signals and threads of a running arena",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.InvalidInput(errors.PhaseRuntime, "watch needs a terminal; use show instead")
			}
			h, err := attach(rootOpts)
			if err != nil {
				return err
			}
			defer h.Close(context.Background())

			m := newWatchModel(h, interval)
			if len(args) > 0 {
				m.filter.SetValue(args[0])
			}
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 250*time.Millisecond, "refresh interval")
	return cmd
}

type watchView int

const (
	viewPins watchView = iota
	viewParams
	viewSignals
	viewThreads
	numViews
)

var viewNames = [numViews]string{"pins", "params", "signals", "threads"}

type watchModel struct {
	err      error
	h        *hal.HAL
	filter   textinput.Model
	rows     []string
	interval time.Duration
	offset   int
	height   int
	view     watchView
}

type tickMsg time.Time

type snapshotMsg struct {
	err  error
	rows []string
}

func newWatchModel(h *hal.HAL, interval time.Duration) *watchModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "name prefix"
	ti.Width = 40
	return &watchModel{
		h:        h,
		filter:   ti,
		interval: interval,
		height:   24,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.snapshot, m.tick())
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// snapshot reads the directory for the current view. It runs as a
// command so the segment mutex is never taken from Update.
func (m *watchModel) snapshot() tea.Msg {
	prefix := m.filter.Value()
	var rows []string
	switch m.view {
	case viewPins:
		pins, err := m.h.Pins(prefix)
		if err != nil {
			return snapshotMsg{err: err}
		}
		for _, p := range pins {
			link := ""
			if p.Signal != "" {
				link = " " + p.Signal
			}
			rows = append(rows, fmt.Sprintf("%-32s %s %-4s %s%s",
				nameStyle.Render(p.Name), typeStyle.Render(fmt.Sprintf("%-5s", p.Type)), p.Dir,
				valueStyle.Render(p.Value.String()), link))
		}
	case viewParams:
		params, err := m.h.Params(prefix)
		if err != nil {
			return snapshotMsg{err: err}
		}
		for _, p := range params {
			rows = append(rows, fmt.Sprintf("%-32s %s %-4s %s",
				nameStyle.Render(p.Name), typeStyle.Render(fmt.Sprintf("%-5s", p.Type)), p.Dir,
				valueStyle.Render(p.Value.String())))
		}
	case viewSignals:
		sigs, err := m.h.Signals(prefix)
		if err != nil {
			return snapshotMsg{err: err}
		}
		for _, s := range sigs {
			rows = append(rows, fmt.Sprintf("%-32s %s %s  r%d w%d b%d",
				nameStyle.Render(s.Name), typeStyle.Render(fmt.Sprintf("%-5s", s.Type)),
				valueStyle.Render(s.Value.String()), s.Readers, s.Writers, s.Bidirs))
		}
	case viewThreads:
		threads, err := m.h.Threads()
		if err != nil {
			return snapshotMsg{err: err}
		}
		for _, t := range threads {
			if !strings.HasPrefix(t.Name, prefix) {
				continue
			}
			rows = append(rows, fmt.Sprintf("%-20s %10s passes %-10d time %-10s max %s",
				nameStyle.Render(t.Name), t.Period, t.Passes, t.Runtime, t.Maxtime))
			for _, f := range t.Functs {
				rows = append(rows, "    "+f)
			}
		}
	}
	return snapshotMsg{rows: rows}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter", "esc":
				m.filter.Blur()
				m.offset = 0
				return m, m.snapshot
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "/":
			return m, m.filter.Focus()
		case "tab":
			m.view = (m.view + 1) % numViews
			m.offset = 0
			return m, m.snapshot
		case "up", "k":
			if m.offset > 0 {
				m.offset--
			}
		case "down", "j":
			if m.offset < len(m.rows)-1 {
				m.offset++
			}
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.snapshot, m.tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			if m.offset >= len(m.rows) {
				m.offset = max(len(m.rows)-1, 0)
			}
		}
	}
	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("HAL"))
	b.WriteString(" ")
	b.WriteString(m.h.Arena().Name())
	b.WriteString("  ")
	for v := range numViews {
		if v == m.view {
			b.WriteString(activeTabStyle.Render(viewNames[v]))
		} else {
			b.WriteString(tabStyle.Render(viewNames[v]))
		}
	}
	b.WriteString("\n")
	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	// title, filter and help take five lines
	visible := max(m.height-5, 1)
	end := min(m.offset+visible, len(m.rows))
	for _, r := range m.rows[m.offset:end] {
		b.WriteString(r)
		b.WriteString("\n")
	}
	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("nothing matches"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab view • / filter • ↑/↓ scroll • q quit"))
	return b.String()
}
