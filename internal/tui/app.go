package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Luchitomori/frostwire-desktop/internal/smartsearch"
)

// Tab identifies the active list.
type Tab int

const (
	TabLocal Tab = iota
	TabDeep
)

// Messages
type dispatchMsg struct{ fn func() }

type deepDoneMsg struct{}

// ProgramDispatcher runs callbacks inside the Bubble Tea event loop, which
// owns the panel while the program runs.
type ProgramDispatcher struct {
	p *tea.Program
}

func NewProgramDispatcher(p *tea.Program) *ProgramDispatcher {
	return &ProgramDispatcher{p: p}
}

// Dispatch must not be called from inside Update.
func (d *ProgramDispatcher) Dispatch(fn func()) {
	d.p.Send(dispatchMsg{fn: fn})
}

// Model is the live view of one deep search.
type Model struct {
	session  *smartsearch.Session
	panel    *smartsearch.Panel
	cancel   context.CancelFunc
	local    listModel
	deep     listModel
	tab      Tab
	spinner  spinner.Model
	inFlight int
	round    int
	finished bool
	width    int
	height   int
}

// NewModel creates the TUI model. cancel stops the deep search.
func NewModel(s *smartsearch.Session, panel *smartsearch.Panel, local []smartsearch.LocalResult, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		session: s,
		panel:   panel,
		cancel:  cancel,
		spinner: sp,
		local:   listModel{height: 20},
		deep:    listModel{height: 20},
	}
	rows := make([]row, 0, len(local))
	for _, r := range local {
		rows = append(rows, row{name: r.Torrent.Name + " / " + r.File.Path, seeds: r.Torrent.Seeds, size: r.File.Size})
	}
	m.local.setRows(rows)
	if len(rows) == 0 {
		m.tab = TabDeep
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := max(m.height-7, 1) // header, tabs, rules, status bar
		m.local.height = listHeight
		m.deep.height = listHeight
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case dispatchMsg:
		msg.fn()
		m.refresh()
		return m, nil

	case deepDoneMsg:
		m.finished = true
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		m.round = m.session.Round()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refresh() {
	deep := m.panel.DeepResults()
	rows := make([]row, 0, len(deep))
	for _, r := range deep {
		rows = append(rows, row{name: r.Torrent.Title + " / " + r.File.Path, seeds: r.Torrent.Seeds, size: r.File.Size})
	}
	m.deep.setRows(rows)
	m.inFlight = m.panel.InFlight()
	m.round = m.session.Round()
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	list := &m.local
	if m.tab == TabDeep {
		list = &m.deep
	}

	switch key {
	case "ctrl+c", "q", "esc":
		m.panel.Close()
		m.cancel()
		return m, tea.Quit
	case "tab", "shift+tab":
		m.tab = 1 - m.tab
	case "1":
		m.tab = TabLocal
	case "2":
		m.tab = TabDeep
	case "up", "k":
		list.moveUp()
	case "down", "j":
		list.moveDown()
	case "pgup", "ctrl+u":
		list.pageUp()
	case "pgdown", "ctrl+d":
		list.pageDown()
	}
	return m, nil
}

func (m Model) working() bool {
	return m.inFlight > 0 || !m.finished
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("  Smart Search  "))
	sb.WriteString(queryStyle.Render(m.session.Query))
	sb.WriteString("\n")

	tabs := []struct {
		name string
		tab  Tab
		n    int
	}{
		{"Local", TabLocal, len(m.local.rows)},
		{"Deep", TabDeep, len(m.deep.rows)},
	}
	for i, t := range tabs {
		label := fmt.Sprintf(" %d %s (%d) ", i+1, t.name, t.n)
		if m.tab == t.tab {
			sb.WriteString(tabActiveStyle.Render(label))
		} else {
			sb.WriteString(tabInactiveStyle.Render(label))
		}
		sb.WriteString(" ")
	}
	if m.working() {
		sb.WriteString(workingStyle.Render(fmt.Sprintf(" %s round %d, %d fetching", m.spinner.View(), m.round, m.inFlight)))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	if m.tab == TabLocal {
		sb.WriteString(m.local.view(m.width, "No matches in the local index."))
	} else {
		empty := "No file matches yet."
		if !m.working() {
			empty = "Deep search found no matching files."
		}
		sb.WriteString(m.deep.view(m.width, empty))
	}

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(statusBarStyle.Width(m.width).Render("j/k:navigate  Tab/1-2:switch list  q:stop and quit"))

	return sb.String()
}

// Run shows the live view while a deep search runs over panel. Quitting
// closes the panel and stops the search.
func Run(ctx context.Context, coord *smartsearch.Coordinator, s *smartsearch.Session, panel *smartsearch.Panel, local []smartsearch.LocalResult) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(s, panel, local, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	s.Dispatcher = NewProgramDispatcher(p)

	done := coord.Launch(ctx, s)
	go func() {
		<-done
		p.Send(deepDoneMsg{})
	}()

	_, err := p.Run()
	panel.Close()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
