package chat

import (
	"context"
	"strings"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/bus"
	"github.com/adamavenir/aioffice/internal/stream"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles terminal input and workspace changes.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshViewport(true)
		return m, nil

	case changeMsg:
		m.refreshState()
		m.refreshViewport(false)
		return m, m.waitForChange()

	case tickMsg:
		m.refreshViewport(false)
		return m, tick()

	case actionMsg:
		switch {
		case msg.err != nil && !apperr.IsCancelled(msg.err):
			m.status = apperr.UserMessage(msg.err)
		case msg.err == nil:
			m.status = msg.status
		}
		m.refreshState()
		m.refreshViewport(true)
		return m, nil

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if h := inputHeight(m.input.Value()); h != m.input.Height() {
		m.input.SetHeight(h)
		m.resize()
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true
	case "esc":
		if m.showHelp {
			m.showHelp = false
			m.resize()
			return nil, true
		}
		comp := m.ws.Stream.Composer()
		if comp.ReplyTo != nil {
			m.setComposer(func(c *stream.Composer) { c.ReplyTo = nil })
			m.status = ""
			return nil, true
		}
		m.ws.Bus.Publish(bus.Escape, nil)
		return nil, true
	case "tab":
		m.sidebarOpen = !m.sidebarOpen
		m.resize()
		m.refreshViewport(false)
		return nil, true
	case "ctrl+g":
		m.showGuide = !m.showGuide
		m.ws.SetGuidanceEnabled(m.showGuide)
		m.resize()
		return nil, true
	case "ctrl+n":
		return m.stepChannel(1), true
	case "ctrl+p":
		return m.stepChannel(-1), true
	case "pgup":
		m.scrollBy(-m.viewport.Height / 2)
		return nil, true
	case "pgdown":
		m.scrollBy(m.viewport.Height / 2)
		return nil, true
	case "enter":
		return m.submit(), true
	}
	return nil, false
}

func (m *Model) submit() tea.Cmd {
	value := strings.TrimSpace(normalizeNewlines(m.input.Value()))
	if value == "" && len(m.ws.Stream.Composer().Attachments) == 0 {
		return nil
	}
	m.input.Reset()
	m.input.SetHeight(1)
	m.resize()

	if cmd, ok := parseSlash(value); ok {
		return m.runCommand(cmd)
	}
	if m.ws.Channel() == "" {
		m.status = "select a channel first"
		return nil
	}
	st := m.ws.Stream
	return action(func(ctx context.Context) (string, error) {
		if _, err := st.SendComposed(ctx, value); err != nil {
			return "", err
		}
		return "", nil
	})
}

func (m *Model) stepChannel(delta int) tea.Cmd {
	channels := m.snap.Channels
	if len(channels) == 0 {
		return nil
	}
	current := m.ws.Channel()
	idx := -1
	for i, c := range channels {
		if c.ID == current {
			idx = i
			break
		}
	}
	next := (idx + delta + len(channels)) % len(channels)
	if idx < 0 && delta < 0 {
		next = len(channels) - 1
	}
	return m.selectChannel(channels[next].ID)
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.scrollBy(-3)
		return nil
	case tea.MouseButtonWheelDown:
		m.scrollBy(3)
		return nil
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return nil
	}
	for _, c := range m.snap.Channels {
		if m.zones.Get(channelZone(c.ID)).InBounds(msg) {
			return m.selectChannel(c.ID)
		}
	}
	for _, row := range m.ws.Stream.View().Rows {
		id := row.Message.ID
		if m.zones.Get(messageZone(id)).InBounds(msg) {
			m.setComposer(func(c *stream.Composer) { c.ReplyTo = &id })
			m.status = replyStatus(id)
			return nil
		}
	}
	return nil
}

func (m *Model) scrollBy(delta int) {
	m.viewport.SetYOffset(m.viewport.YOffset + delta)
}
