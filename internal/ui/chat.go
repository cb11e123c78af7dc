package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/BioHazard786/Warpchat/internal/room"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ChatSession is what the chat screen needs from a room coordinator.
type ChatSession interface {
	Updates() <-chan room.Update
	SendChat(ctx context.Context, text string) error
	State() room.ConnectionState
	Chats() []room.ChatMessage
	Room() string
	UserName() string
	LocalFingerprint() string
	RemoteFingerprint() string
}

type updateMsg room.Update

type sendResultMsg struct {
	err error
}

type sessionDoneMsg struct{}

// ChatModel is the interactive chat screen.
type ChatModel struct {
	ctx  context.Context
	sess ChatSession

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state room.ConnectionState
	lines []string
	ready bool

	// shown counts entries of the session's chat log already rendered.
	shown int

	width  int
	height int
}

// NewChatModel creates a chat screen bound to sess.
func NewChatModel(ctx context.Context, sess ChatSession) *ChatModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = IconChat + " "
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 16)
	vp.KeyMap = viewport.KeyMap{
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}

	return &ChatModel{
		ctx:      ctx,
		sess:     sess,
		viewport: vp,
		input:    ti,
		spinner:  s,
		state:    sess.State(),
		width:    80,
		height:   24,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForUpdates(),
	)
}

// waitForUpdates returns a command that listens for coordinator updates
func (m *ChatModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.sess.Updates():
			return updateMsg(u)
		case <-m.ctx.Done():
			return sessionDoneMsg{}
		}
	}
}

func (m *ChatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{err: m.sess.SendChat(m.ctx, text)}
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.state != room.Connected {
				return m, nil
			}
			m.input.Reset()
			return m, m.send(text)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case updateMsg:
		m.handleUpdate(room.Update(msg))
		cmds = append(cmds, m.waitForUpdates())

	case sendResultMsg:
		if msg.err != nil {
			m.appendLine(FormatError(msg.err))
		}

	case sessionDoneMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) handleUpdate(u room.Update) {
	switch u.Kind {
	case room.UpdateState:
		m.state = u.State
		if u.State == room.Connected {
			m.appendLine(SystemStyle.Render(fmt.Sprintf("%s Peer connected, exchanging keys...", IconConnect)))
		}

	case room.UpdateKeyExchanged:
		m.ready = true
		m.appendLine(SystemStyle.Render(fmt.Sprintf("%s Encrypted. Peer key %s", IconLock, m.sess.RemoteFingerprint())))

	case room.UpdateMessage:
		m.syncChats()

	case room.UpdateError:
		if u.Err != nil {
			m.appendLine(FormatError(u.Err))
		}
	}
}

// syncChats renders every log entry not shown yet. Updates can be dropped
// when the screen falls behind, so the log is the source of truth.
func (m *ChatModel) syncChats() {
	chats := m.sess.Chats()
	if len(chats) <= m.shown {
		return
	}
	user := m.sess.UserName()
	for _, msg := range chats[m.shown:] {
		m.lines = append(m.lines, FormatMessage(msg, msg.From == user))
	}
	m.shown = len(chats)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *ChatModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *ChatModel) resize() {
	// header (2) + input box (3) + footer (2) + container margins (2)
	height := m.height - 9
	if height < 3 {
		height = 3
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	m.viewport.Width = width
	m.viewport.Height = height
	m.input.Width = width - 6
}

func (m *ChatModel) View() string {
	var b strings.Builder

	header := HeaderStyle.Render(fmt.Sprintf("%s Warpchat - %s", IconChat, m.sess.Room()))
	b.WriteString(header + " " + StatusStyle.Render(m.state.String()) + "\n")

	if m.state != room.Connected {
		b.WriteString(fmt.Sprintf("%s Waiting for peer...\n", m.spinner.View()))
	} else if !m.ready && len(m.lines) == 0 {
		b.WriteString(fmt.Sprintf("%s Exchanging keys...\n", m.spinner.View()))
	}

	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(InputStyle.Render(m.input.View()) + "\n")
	b.WriteString(FooterStyle.Render(fmt.Sprintf("%s  enter send • pgup/pgdown scroll • esc quit", m.sess.UserName())))

	return ContainerStyle.Render(b.String())
}

// Lines returns the rendered chat log.
func (m *ChatModel) Lines() []string {
	return append([]string(nil), m.lines...)
}

// FormatMessage renders one chat line with the sender's name styled by
// whether it is local.
func FormatMessage(msg room.ChatMessage, local bool) string {
	style := RemoteNameStyle
	if local {
		style = LocalNameStyle
	}
	return fmt.Sprintf("%s %s", style.Render(msg.From+":"), msg.Text)
}

// RunChat shows the chat screen until the user quits or ctx ends.
func RunChat(ctx context.Context, sess ChatSession) error {
	p := tea.NewProgram(NewChatModel(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}
