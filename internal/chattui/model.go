// Package chattui renders the Chat TUI Poller's UI half: a bubbletea frame
// loop over the thread history, a group-chat auto-turn scheduler, and
// interactive muting/interrupt controls.
package chattui

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kdorchestrator/kd/internal/chatpoller"
	"github.com/kdorchestrator/kd/internal/config"
	"github.com/kdorchestrator/kd/internal/historyfmt"
	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/thread"
)

const pollInterval = chatpoller.DefaultInterval

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)

var (
	memberColor = lipgloss.Color("111")
	humanColor  = lipgloss.Color("249")
	metaColor   = lipgloss.Color("242")
	errColor    = lipgloss.Color("203")
)

// Options configures a chat session.
type Options struct {
	Layout       kdpath.Layout
	Threads      *thread.Store
	Invoker      *invoker.Invoker
	Backends     map[string]invoker.Backend
	BranchSlug   string
	ThreadSlug   string
	Members      []string // configured council.members, in round-robin order
	Username     string   // human identity written as message "from"
	AutoMessages *int     // council.auto_messages; nil defaults to unmuted-member count
}

// Run starts the chat UI and blocks until the user quits.
func Run(opts Options) error {
	model, err := newModel(opts)
	if err != nil {
		return err
	}
	defer model.poller.Close()
	program := tea.NewProgram(model)
	_, err = program.Run()
	return err
}

type tickMsg time.Time

type wakeMsg struct{}

type pollEventsMsg []chatpoller.Event

type turnResultMsg struct {
	generation int
	member     string
	resp       *invoker.AgentResponse
	err        error
}

// model implements the chat TUI's bubbletea program.
type model struct {
	opts   Options
	poller *chatpoller.Poller

	viewport viewport.Model
	input    textarea.Model

	rendered []renderedLine
	status   string
	width    int
	height   int

	muted map[string]bool

	generation       int
	interrupted      bool
	quitArmed        bool
	firstExchangeOK  bool
	autoBudgetLeft   int
	turnCursor       int
	pendingTurns     int

	procsMu sync.Mutex
	procs   []*os.Process
}

type renderedLine struct {
	text string
}

func newModel(opts Options) (*model, error) {
	poller, err := chatpoller.New(opts.Layout, opts.Threads, opts.Backends, opts.BranchSlug, opts.ThreadSlug, opts.Members)
	if err != nil {
		return nil, err
	}

	input := textarea.New()
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.MaxHeight = 6
	input.Focus()

	vp := viewport.New(0, 0)

	m := &model{
		opts:     opts,
		poller:   poller,
		viewport: vp,
		input:    input,
		muted:    make(map[string]bool),
	}

	existing, err := opts.Threads.ListMessages(opts.BranchSlug, opts.ThreadSlug)
	if err != nil {
		return nil, err
	}
	for _, msg := range existing {
		m.rendered = append(m.rendered, renderedLine{text: m.formatMessage(msg)})
	}
	m.firstExchangeOK = len(existing) > 0
	m.refreshViewport()

	return m, nil
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.wakeCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// wakeCmd blocks on the poller's fsnotify wake channel, if one was armed,
// so a thread-directory write can trigger a poll before the next fixed
// tick. Returns nil when no watcher is available, leaving the fixed
// interval as the only source of polls.
func (m *model) wakeCmd() tea.Cmd {
	ch := m.poller.Wake()
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return wakeMsg{}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tea.Batch(m.pollCmd(), tickCmd())

	case wakeMsg:
		return m, tea.Batch(m.pollCmd(), m.wakeCmd())

	case pollEventsMsg:
		m.applyEvents(msg)
		return m, nil

	case turnResultMsg:
		return m, m.applyTurnResult(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		armed := m.quitArmed
		m.interrupt()
		if armed {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.resize()
		if value == "" {
			return m, nil
		}
		return m, m.handleSubmit(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// interrupt implements Escape: set the interrupt flag, kill every process
// handle launched by this TUI process, and invalidate the generation
// counter so in-flight turns are discarded on arrival.
func (m *model) interrupt() {
	m.interrupted = true
	m.generation++
	m.pendingTurns = 0
	m.quitArmed = true

	m.procsMu.Lock()
	procs := m.procs
	m.procs = nil
	m.procsMu.Unlock()
	for _, p := range procs {
		p.Kill()
	}
}

func (m *model) trackProcess(p *os.Process) {
	m.procsMu.Lock()
	m.procs = append(m.procs, p)
	m.procsMu.Unlock()
}

// handleSubmit implements the group-chat auto-turn scheduler.
func (m *model) handleSubmit(text string) tea.Cmd {
	if strings.HasPrefix(text, "/") {
		return m.handleSlashCommand(text)
	}

	m.interrupted = false
	m.quitArmed = false
	m.generation++
	gen := m.generation

	seq, path, err := m.opts.Threads.AppendMessage(m.opts.BranchSlug, m.opts.ThreadSlug, m.opts.Username, "", text, nil)
	if err != nil {
		m.status = err.Error()
		return nil
	}
	humanMsg := thread.Message{Seq: seq, From: m.opts.Username, Body: text, Path: path}
	m.rendered = append(m.rendered, renderedLine{text: m.formatMessage(humanMsg)})
	m.refreshViewport()

	directed := directedTargets(text)
	if len(directed) > 0 {
		return tea.Batch(m.queryCmds(gen, directed)...)
	}

	if !m.firstExchangeOK {
		m.firstExchangeOK = true
		targets := m.unmutedMembers()
		return tea.Batch(m.queryCmds(gen, targets)...)
	}

	m.autoBudgetLeft = m.autoMessagesBudget()
	return m.nextAutoTurn(gen)
}

func (m *model) handleSlashCommand(text string) tea.Cmd {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "/mute":
		if len(fields) > 1 {
			m.muted[fields[1]] = true
			m.status = "muted " + fields[1]
		}
	case "/unmute":
		if len(fields) > 1 {
			delete(m.muted, fields[1])
			m.status = "unmuted " + fields[1]
		}
	case "/quit":
		return tea.Quit
	default:
		m.status = "unknown command: " + fields[0]
	}
	return nil
}

// nextAutoTurn dispatches the next sequential round-robin member, re-checking
// the interrupt flag and generation before launching.
func (m *model) nextAutoTurn(gen int) tea.Cmd {
	if m.interrupted || gen != m.generation || m.autoBudgetLeft <= 0 {
		return nil
	}
	target := m.nextUnmutedMember()
	if target == "" {
		return nil
	}
	m.autoBudgetLeft--
	m.pendingTurns++
	return m.queryCmds(gen, []string{target})[0]
}

func (m *model) queryCmds(gen int, targets []string) []tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(targets))
	for _, name := range targets {
		m.pendingTurns++
		cmds = append(cmds, m.queryCmd(gen, name))
	}
	return cmds
}

func (m *model) queryCmd(gen int, name string) tea.Cmd {
	backend, ok := m.opts.Backends[name]
	if !ok {
		return func() tea.Msg {
			return turnResultMsg{generation: gen, member: name, err: fmt.Errorf("chattui: no backend configured for %q", name)}
		}
	}
	return func() tea.Msg {
		history, err := m.opts.Threads.ListMessages(m.opts.BranchSlug, m.opts.ThreadSlug)
		if err != nil {
			return turnResultMsg{generation: gen, member: name, err: err}
		}
		prompt := historyfmt.Render(history, name)
		streamPath := m.opts.Layout.StreamFile(m.opts.BranchSlug, m.opts.ThreadSlug, name)

		inv := m.opts.Invoker
		origHook := inv.ActiveProcess
		inv.ActiveProcess = func(p *os.Process) {
			m.trackProcess(p)
			if origHook != nil {
				origHook(p)
			}
		}
		resp, err := inv.Query(context.Background(), backend, invoker.Request{
			Prompt:     prompt,
			StreamPath: streamPath,
		})
		inv.ActiveProcess = origHook
		return turnResultMsg{generation: gen, member: name, resp: resp, err: err}
	}
}

// applyTurnResult persists a completed member response to the thread (unless
// the generation has since been invalidated), then continues the round-robin
// schedule if budget remains. Errors still consume budget.
func (m *model) applyTurnResult(res turnResultMsg) tea.Cmd {
	m.pendingTurns--
	if res.generation != m.generation {
		return nil
	}

	body := ""
	switch {
	case res.err != nil:
		body = fmt.Sprintf("(error: %s)", res.err)
	case res.resp != nil:
		body = res.resp.Text
		if res.resp.Error != nil {
			body = fmt.Sprintf("%s\n\n(error: %s)", strings.TrimSpace(body), res.resp.Error)
		}
	}

	seq, path, err := m.opts.Threads.AppendMessage(m.opts.BranchSlug, m.opts.ThreadSlug, res.member, "", body, nil)
	if err == nil {
		msg := thread.Message{Seq: seq, From: res.member, Body: body, Path: path}
		m.rendered = append(m.rendered, renderedLine{text: m.formatMessage(msg)})
		m.refreshViewport()
	}

	return m.nextAutoTurn(res.generation)
}

func (m *model) unmutedMembers() []string {
	var out []string
	for _, name := range m.opts.Members {
		if !m.muted[name] {
			out = append(out, name)
		}
	}
	return out
}

func (m *model) nextUnmutedMember() string {
	n := len(m.opts.Members)
	if n == 0 {
		return ""
	}
	for i := 0; i < n; i++ {
		candidate := m.opts.Members[m.turnCursor%n]
		m.turnCursor++
		if !m.muted[candidate] {
			return candidate
		}
	}
	return ""
}

// autoMessagesBudget resolves council.auto_messages against the current
// unmuted-member count via config.Council.AutoMessagesFor: nil defaults to
// "one turn per unmuted member", 0 disables auto-turns entirely, and any
// other value caps the round at that many sequential turns.
func (m *model) autoMessagesBudget() int {
	n := len(m.unmutedMembers())
	if n == 0 {
		return 0
	}
	return config.Council{AutoMessages: m.opts.AutoMessages}.AutoMessagesFor(n)
}

// directedTargets implements "Directed @<member> messages skip auto-turns
// entirely" — a message with explicit @mentions queries only those members.
func directedTargets(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var out []string
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// applyEvents dispatches new-message and stream-delta poll events. New
// messages from outside this TUI process (e.g. another king session) are
// appended; stream deltas are currently surfaced only as a status-line
// indicator since finalized text already arrives via turnResultMsg for
// turns this process itself launched.
func (m *model) applyEvents(events []chatpoller.Event) {
	changed := false
	for _, ev := range events {
		switch ev.Kind {
		case chatpoller.EventNewMessage:
			if m.isOwnPendingMessage(ev.Message) {
				continue
			}
			m.rendered = append(m.rendered, renderedLine{text: m.formatMessage(ev.Message)})
			changed = true
		case chatpoller.EventStreamDelta:
			m.status = ev.Member + " is responding..."
		case chatpoller.EventThinkingDelta:
			m.status = ev.Member + " is thinking..."
		}
	}
	if changed {
		m.refreshViewport()
	}
}

// isOwnPendingMessage avoids double-rendering a message this same process
// already appended via applyTurnResult/handleSubmit before the next poll
// tick observes it on disk.
func (m *model) isOwnPendingMessage(msg thread.Message) bool {
	for _, r := range m.rendered {
		if r.text == m.formatMessage(msg) {
			return true
		}
	}
	return false
}

func (m *model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		events, err := m.poller.Poll()
		if err != nil {
			return pollEventsMsg(nil)
		}
		return pollEventsMsg(events)
	}
}

func (m *model) resize() {
	inputHeight := m.input.Height() + 1
	statusHeight := 1
	vh := m.height - inputHeight - statusHeight
	if vh < 0 {
		vh = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = vh
	m.input.SetWidth(m.width)
	m.refreshViewport()
}

// refreshViewport rewrites the viewport content and auto-scrolls only when
// the user's view is already at the bottom (no-yank rule).
func (m *model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	var b strings.Builder
	for i, r := range m.rendered {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.text)
	}
	m.viewport.SetContent(b.String())
	if atBottom || len(m.rendered) <= 1 {
		m.viewport.GotoBottom()
	}
}

func (m *model) View() string {
	status := lipgloss.NewStyle().Foreground(metaColor).Render(m.status)
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.input.View(), status)
}

func (m *model) formatMessage(msg thread.Message) string {
	color := memberColor
	if msg.From == m.opts.Username {
		color = humanColor
	}
	if strings.Contains(msg.Body, "(error:") {
		color = errColor
	}
	style := lipgloss.NewStyle().Foreground(color)
	return style.Render(msg.From+":") + " " + msg.Body
}
