package main

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/baharkarakas/insider-wallet/internal/session"
)

type entryKind int

const (
	entryPlain entryKind = iota
	entryTitle
	entryInfo
	entrySuccess
	entryError
	entryCredit
	entryDebit
	entryPrompt
)

type entry struct {
	kind entryKind
	text string
}

// messages
type (
	linesMsg  []entry
	submitMsg string // one input line, typed or scripted
	pageMsg   session.Page
	doneMsg   struct{ quit bool }
	userMsg   struct{ name, handle, balance string }
	promptMsg struct {
		text  string
		reply chan bool
	}
	promptGoneMsg struct{ reply chan bool }
)

const scrollbackMax = 500

// scrollback is the transcript shown above the input. The debug listener
// and tests read it while the program runs.
type scrollback struct {
	mu    sync.Mutex
	lines []entry
}

func (s *scrollback) add(es ...entry) {
	s.mu.Lock(); defer s.mu.Unlock()
	s.lines = append(s.lines, es...)
	if over := len(s.lines) - scrollbackMax; over > 0 {
		s.lines = append(s.lines[:0:0], s.lines[over:]...)
	}
}

func (s *scrollback) tail(n int) []entry {
	s.mu.Lock(); defer s.mu.Unlock()
	if n > len(s.lines) || n <= 0 {
		n = len(s.lines)
	}
	return append([]entry(nil), s.lines[len(s.lines)-n:]...)
}

func (s *scrollback) String() string {
	var b strings.Builder
	for _, e := range s.tail(0) {
		b.WriteString(e.text)
		b.WriteByte('\n')
	}
	return b.String()
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F15B5B"))
	creditStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6CBFE6"))
	debitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB"))
	promptCard   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFD54A")).
			Padding(0, 1)
)

func (e entry) render() string {
	switch e.kind {
	case entryTitle:
		return titleStyle.Render(e.text)
	case entryInfo:
		return labelStyle.Render(e.text)
	case entrySuccess:
		return successStyle.Render(e.text)
	case entryError:
		return errorStyle.Render(e.text)
	case entryCredit:
		return creditStyle.Render(e.text)
	case entryDebit:
		return debitStyle.Render(e.text)
	case entryPrompt:
		return valueStyle.Render(e.text)
	}
	return e.text
}

// controlWords end a waiting confirmation and then run as commands.
var controlWords = map[string]bool{
	"close": true, "cancel": true, "quit": true, "exit": true, "logout": true,
}

// model is the terminal program. Commands run one at a time off the update
// loop; lines typed meanwhile queue behind them unless they answer a
// confirmation or feed the scanner.
type model struct {
	app   *app
	hist  *scrollback
	input textinput.Model

	page     session.Page
	user     userMsg
	prompt   *promptMsg
	running  bool
	queue    []string
	quitting bool
	height   int
}

func newModel(a *app) model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "type help"
	in.CharLimit = 512
	in.Focus()
	return model{app: a, hist: a.hist, input: in, running: true}
}

func (m model) Init() tea.Cmd {
	a := m.app
	return tea.Batch(textinput.Blink, func() tea.Msg {
		a.Navigate(session.PageLogin)
		a.settle()
		return doneMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m.quit()
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m.submit(line)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case submitMsg:
		return m.submit(string(msg))
	case linesMsg:
		m.hist.add(msg...)
		return m, nil
	case userMsg:
		m.user = msg
		m.hist.add(entry{kind: entryTitle, text: msg.name + " " + msg.handle + "  balance " + msg.balance})
		return m, nil
	case pageMsg:
		m.page = session.Page(msg)
		if m.page != session.PageAccount {
			m.user = userMsg{}
		}
		return m, nil
	case promptMsg:
		if m.prompt != nil {
			msg.reply <- false
			m.hist.add(entry{kind: entryError, text: "✗ another confirmation is waiting for an answer"})
			return m, nil
		}
		m.prompt = &msg
		m.hist.add(entry{kind: entryPrompt, text: msg.text})
		return m, nil
	case promptGoneMsg:
		if m.prompt != nil && m.prompt.reply == msg.reply {
			m.prompt = nil
			m.hist.add(entry{kind: entryInfo, text: "· confirmation dismissed"})
		}
		return m, nil
	case doneMsg:
		m.running = false
		if msg.quit {
			return m.quit()
		}
		if len(m.queue) > 0 {
			line := m.queue[0]
			m.queue = m.queue[1:]
			return m.exec(line)
		}
		return m, nil
	}
	return m, nil
}

func firstWord(line string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	return strings.ToLower(word)
}

func yes(line string) bool {
	ans := strings.ToLower(strings.TrimSpace(line))
	return ans == "y" || ans == "yes"
}

func (m model) submit(line string) (tea.Model, tea.Cmd) {
	word := firstWord(line)
	p := m.prompt
	if p == nil {
		return m.route(line, word)
	}
	m.prompt = nil
	if !controlWords[word] {
		p.reply <- yes(line)
		return m, nil
	}
	// the modal closes before the flow sees the decline, so a scan that
	// opened this dialog does not reacquire the camera
	acct := m.app.account()
	dismiss := func() tea.Msg {
		if acct != nil {
			acct.CloseScan()
		}
		p.reply <- false
		return nil
	}
	if word == "close" || word == "cancel" {
		return m, dismiss
	}
	next, cmd := m.route(line, word)
	return next, tea.Sequence(dismiss, cmd)
}

func (m model) route(line, word string) (tea.Model, tea.Cmd) {
	switch {
	case word == "":
		return m, nil
	case word == "quit" || word == "exit":
		return m.quit()
	case m.app.scanFrame(line):
		return m, nil
	case m.running:
		m.queue = append(m.queue, line)
		return m, nil
	}
	return m.exec(line)
}

func (m model) exec(line string) (tea.Model, tea.Cmd) {
	m.running = true
	a := m.app
	return m, func() tea.Msg {
		quit := a.exec(line)
		a.settle()
		return doneMsg{quit: quit}
	}
}

func (m model) quit() (tea.Model, tea.Cmd) {
	if p := m.prompt; p != nil {
		m.prompt = nil
		p.reply <- false
	}
	m.quitting = true
	return m, tea.Quit
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	header := titleStyle.Render("wallet · " + string(m.page))
	if m.user.name != "" {
		header += "  " + valueStyle.Render(m.user.name) + " " + labelStyle.Render(m.user.handle) +
			"  " + labelStyle.Render("balance") + " " + valueStyle.Render(m.user.balance)
	}
	b.WriteString(header + "\n\n")

	rows := 20
	if m.height > 0 {
		rows = max(3, m.height-8)
	}
	for _, e := range m.hist.tail(rows) {
		b.WriteString(e.render() + "\n")
	}
	if m.prompt != nil {
		b.WriteString(promptCard.Render(m.prompt.text+"\n"+labelStyle.Render("y to pay, anything else declines")) + "\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}
