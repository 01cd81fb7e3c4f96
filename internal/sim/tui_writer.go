package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"owl-traffic-gen/internal/sample"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// sampleMsg carries a log line for a delivered sample.
type sampleMsg struct{ line string }

// stateMsg carries a generator state update.
type stateMsg struct{ StateRow }

// maxLogLines bounds the sample log kept for the viewport.
const maxLogLines = 500

// TUIInfo describes the run shown in the header table.
type TUIInfo struct {
	RunID        string
	Aggregator   string
	Transmitters int
	Interval     time.Duration
	Loss         float64
}

// TUIWriter renders delivered samples and generator state using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the UI interrupts the process so the generator shuts down gracefully.
func NewTUIWriter(info TUIInfo) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(info), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write adds a delivered sample to the log view.
func (w *TUIWriter) Write(s sample.Sample) error {
	line := fmt.Sprintf("%s tx=%-6d rx=%d phy=%d rss=%.1f",
		s.Time().Format("15:04:05.000"), s.TxID, s.RxID, s.PhysicalLayer, s.RSS)
	w.program.Send(sampleMsg{line: line})
	return nil
}

// WriteState updates the counters in the status bar.
func (w *TUIWriter) WriteState(row StateRow) error {
	w.program.Send(stateMsg{row})
	return nil
}

// Close stops the UI without interrupting the process.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	info         TUIInfo
	table        table.Model
	vp           viewport.Model
	logs         []string
	state        StateRow
	wrap         bool
	autoscroll   bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(info TUIInfo) tuiModel {
	cols := []table.Column{
		{Title: "Run", Width: 14},
		{Title: "Value", Width: 38},
	}
	rows := []table.Row{
		{"Run ID", info.RunID},
		{"Aggregator", info.Aggregator},
		{"Transmitters", fmt.Sprintf("%d", info.Transmitters)},
		{"Interval", info.Interval.String()},
		{"Loss", fmt.Sprintf("%.2f", info.Loss)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		info:       info,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
		state:      StateRow{RunID: info.RunID, State: StateConnecting.String()},
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.header = m.table.View()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "?", "h":
			m.help = true
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case sampleMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case stateMsg:
		m.state = msg.StateRow
		m.updateViewportHeight()
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	h := m.height - m.headerHeight - bottomHeight - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func stateColor(state string) lipgloss.Color {
	switch state {
	case StateRunning.String():
		return lipgloss.Color("10")
	case StateConnecting.String():
		return lipgloss.Color("11")
	}
	return lipgloss.Color("9")
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	state := lipgloss.NewStyle().Foreground(stateColor(m.state.State)).Render(strings.ToUpper(m.state.State))
	counters := fmt.Sprintf("%s %s sent=%d dropped=%d errors=%d reconnects=%d connect_failures=%d schedule=%d",
		label.Render("STATE"), state,
		m.state.Sent, m.state.Dropped, m.state.SendErrors,
		m.state.Reconnects, m.state.ConnectFailures, m.state.ScheduleSize)
	return fmt.Sprintf("%s | Wrap %s | Scroll %s | Help ?", counters, indicator(m.wrap), indicator(m.autoscroll))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit (graceful shutdown)",
		" w  toggle wrap for sample log",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
