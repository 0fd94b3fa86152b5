// Package chat renders the workspace in the terminal.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/adamavenir/aioffice/internal/bus"
	"github.com/adamavenir/aioffice/internal/unread"
	"github.com/adamavenir/aioffice/internal/workspace"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

// Options configure chat.
type Options struct {
	Workspace *workspace.Workspace
	// Channel is selected on start when set.
	Channel string
	// Title names the terminal window.
	Title string
}

// Run starts the terminal workspace and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	defer model.Close()

	title := opts.Title
	if title == "" {
		title = "AI Office"
	}
	fmt.Printf("\033]0;%s\007", title)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := program.Run()
	return err
}

// Model implements the terminal workspace.
type Model struct {
	ws     *workspace.Workspace
	ctx    context.Context
	cancel context.CancelFunc

	events     <-chan bus.Event
	updates    <-chan struct{}
	stopStream func()

	viewport viewport.Model
	input    textarea.Model
	zones    *zone.Manager

	width  int
	height int

	initial     string
	sidebarOpen bool
	showHelp    bool
	showGuide   bool
	status      string

	snap     workspace.Snapshot
	unread   unread.Snapshot
	colorMap map[string]lipgloss.Color
	code     *codeView
}

// NewModel creates a chat model bound to a workspace.
func NewModel(opts Options) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	ws := opts.Workspace
	updates, stop := ws.Stream.Subscribe()
	m := &Model{
		ws:          ws,
		ctx:         ctx,
		cancel:      cancel,
		events:      ws.Bus.Subscribe(ctx, bus.Updated, bus.UnreadNotification, bus.ProjectSwitched, bus.ModeChanged),
		updates:     updates,
		stopStream:  stop,
		viewport:    viewport.New(0, 0),
		input:       newInputModel(),
		zones:       zone.New(),
		code:        newCodeView(),
		initial:     opts.Channel,
		sidebarOpen: true,
		showGuide:   ws.GuidanceEnabled(),
	}
	m.refreshState()
	return m
}

// Close releases subscriptions.
func (m *Model) Close() {
	m.cancel()
	m.stopStream()
}

// Init loads the initial channel and starts listening.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.waitForChange(), tick()}
	if m.initial != "" {
		cmds = append(cmds, m.selectChannel(m.initial))
	}
	return tea.Batch(cmds...)
}

// changeMsg signals that workspace state moved.
type changeMsg struct{}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForChange blocks until the workspace or the push stream reports a
// change. It is re-armed after every delivery.
func (m *Model) waitForChange() tea.Cmd {
	events, updates, ctx := m.events, m.updates, m.ctx
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
		case <-updates:
		}
		return changeMsg{}
	}
}

func (m *Model) selectChannel(channel string) tea.Cmd {
	ws := m.ws
	m.status = "loading " + channel
	return action(func(ctx context.Context) (string, error) {
		if err := ws.SelectChannel(ctx, channel); err != nil {
			return "", err
		}
		return "", nil
	})
}

func (m *Model) refreshState() {
	m.snap = m.ws.Snapshot()
	m.unread = m.ws.Unread.Snapshot()
	m.colorMap = buildColorMap(m.snap.Agents)
}
