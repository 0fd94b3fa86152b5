package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/aioffice/internal/beginner"
	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/adamavenir/aioffice/internal/workspace"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const sidebarCols = 24

func channelZone(id string) string { return "chan-" + id }

func (m *Model) sidebarWidth() int {
	if !m.sidebarOpen || m.width < sidebarCols*2 {
		return 0
	}
	return sidebarCols
}

func (m *Model) mainWidth() int {
	w := m.width - m.sidebarWidth()
	if w < 1 {
		return 1
	}
	return w
}

// chromeHeight counts the rows around the message viewport.
func (m *Model) chromeHeight() int {
	h := 1 + 1 + 1 + m.input.Height() + 1 // header, typing, composer info, input, status
	if m.bannerText() != "" {
		h++
	}
	if m.showGuide {
		h++
	}
	if m.showHelp {
		h += len(commandHelp)
	}
	return h
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.input.SetWidth(m.mainWidth())
	vh := m.height - m.chromeHeight()
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = m.mainWidth()
	m.viewport.Height = vh
}

func (m *Model) refreshViewport(toBottom bool) {
	if m.width == 0 {
		return
	}
	atBottom := m.viewport.AtBottom()
	view := m.ws.Stream.View()
	content := renderRows(view.Rows, renderOptions{
		width:    m.mainWidth(),
		compact:  m.ws.Density() == workspace.DensityCompact,
		colorMap: m.colorMap,
		names:    agentNames(m.snap.Agents),
		mark:     m.zones.Mark,
		code:     m.code,
	})
	m.code.prune(view.Rows)
	m.viewport.SetContent(content)
	m.resize()
	if toBottom || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) bannerText() string {
	if b := m.ws.Banner(); b != "" {
		return b
	}
	return m.ws.Stream.Err()
}

// View renders the workspace.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	width := m.mainWidth()
	view := m.ws.Stream.View()
	names := agentNames(m.snap.Agents)
	dim := lipgloss.NewStyle().Foreground(dimColor)

	lines := []string{m.renderHeader(view, width)}
	if banner := m.bannerText(); banner != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(errorColor).Render(truncateLine("! "+banner, width)))
	}
	if m.showGuide {
		lines = append(lines, truncateLine(renderGuide(m.ws.Steps()), width))
	}
	lines = append(lines, m.viewport.View())
	lines = append(lines, dim.Render(truncateLine(typingLine(view.Typing, names), width)))
	lines = append(lines, dim.Render(truncateLine(composerInfo(view.Composer), width)))
	lines = append(lines, m.input.View())
	if m.showHelp {
		lines = append(lines, dim.Render(renderHelp(width)))
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(statusColor).Render(m.statusLine(width)))

	main := lipgloss.JoinVertical(lipgloss.Left, lines...)
	output := main
	if m.sidebarWidth() > 0 {
		output = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
	}
	return m.zones.Scan(output)
}

func (m *Model) renderHeader(view stream.View, width int) string {
	name := m.channelName(view.Channel)
	parts := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(name)}
	if p := m.snap.Project; p != nil {
		label := p.Project
		if p.DisplayName != "" {
			label = p.DisplayName
		}
		if p.Branch != "" {
			label += " (" + p.Branch + ")"
		}
		parts = append(parts, label)
		parts = append(parts, string(m.ws.Layout.Mode()))
	}
	if view.Channel != "" {
		parts = append(parts, linkLabel(view.State))
	}
	return truncateLine(strings.Join(parts, " · "), width)
}

func linkLabel(s stream.State) string {
	switch s {
	case stream.StateOpen:
		return lipgloss.NewStyle().Foreground(successColor).Render("live")
	case stream.StateConnecting, stream.StateReconnecting:
		return lipgloss.NewStyle().Foreground(unreadColor).Render(string(s))
	}
	return lipgloss.NewStyle().Foreground(dimColor).Render("polling")
}

func (m *Model) channelName(id string) string {
	if id == "" {
		return "no channel"
	}
	for _, c := range m.snap.Channels {
		if c.ID == id {
			return channelLabel(c)
		}
	}
	return "#" + id
}

func channelLabel(c types.Channel) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	if c.Type == types.ChannelDM {
		return "@" + name
	}
	return "#" + name
}

func composerInfo(c stream.Composer) string {
	var parts []string
	if c.ThreadRoot != nil {
		parts = append(parts, fmt.Sprintf("thread #%d", *c.ThreadRoot))
	}
	if c.ReplyTo != nil {
		parts = append(parts, fmt.Sprintf("reply to #%d", *c.ReplyTo))
	}
	if n := len(c.Attachments); n > 0 {
		names := make([]string, n)
		for i, a := range c.Attachments {
			names[i] = a.Name
		}
		parts = append(parts, fmt.Sprintf("%d file(s): %s", n, strings.Join(names, ", ")))
	}
	return strings.Join(parts, " · ")
}

func renderGuide(steps []beginner.Step) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		mark := "○"
		color := dimColor
		switch s.Status {
		case beginner.Done:
			mark, color = "✓", successColor
		case beginner.Ready:
			mark, color = "●", accentColor
		case beginner.InProgress:
			mark, color = "◐", unreadColor
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(color).Render(mark+" "+s.Name))
	}
	line := strings.Join(parts, "  ")
	if next, ok := beginner.Next(steps); ok && next.Hint != "" {
		line += lipgloss.NewStyle().Foreground(dimColor).Render("  → " + next.Hint)
	}
	return line
}

func (m *Model) statusLine(width int) string {
	left := m.status
	right := "? /help"
	if n := m.unread.Total(); n > 0 {
		right = fmt.Sprintf("%d unread · %s", n, right)
	}
	return alignStatusLine(truncateLine(left, width), right, width)
}

func alignStatusLine(left, right string, width int) string {
	if width <= 0 || right == "" {
		return left
	}
	leftWidth := ansi.StringWidth(left)
	rightWidth := ansi.StringWidth(right)
	if leftWidth+rightWidth+1 > width {
		return left
	}
	return left + strings.Repeat(" ", width-leftWidth-rightWidth) + right
}

func (m *Model) renderSidebar() string {
	inner := sidebarCols - 2
	current := m.ws.Channel()
	title := lipgloss.NewStyle().Bold(true).Foreground(textColor)

	lines := []string{title.Render("Channels")}
	for _, c := range m.snap.Channels {
		label := truncateLine(channelLabel(c), inner-4)
		badge := ""
		if n := m.unread.Unread[c.ID]; n > 0 && c.ID != current {
			badge = lipgloss.NewStyle().
				Background(unreadColor).
				Foreground(contrastTextColor(unreadColor)).
				Render(fmt.Sprintf("%d", n))
		}
		row := alignStatusLine(label, badge, inner)
		style := lipgloss.NewStyle().Width(inner)
		if c.ID == current {
			style = style.Background(selectedBg).Bold(true)
		}
		lines = append(lines, m.zones.Mark(channelZone(c.ID), style.Render(row)))
	}

	active := 0
	for _, a := range m.snap.Agents {
		if a.Active {
			active++
		}
	}
	lines = append(lines, "", title.Render("Agents"))
	lines = append(lines, lipgloss.NewStyle().Foreground(dimColor).Render(fmt.Sprintf("%d active", active)))
	for _, b := range types.Backends {
		ok, known := m.snap.Health[b]
		dot := lipgloss.NewStyle().Foreground(dimColor).Render("○")
		if known && ok {
			dot = lipgloss.NewStyle().Foreground(successColor).Render("●")
		} else if known {
			dot = lipgloss.NewStyle().Foreground(errorColor).Render("●")
		}
		lines = append(lines, dot+" "+string(b))
	}
	if n := len(m.snap.Approvals); n > 0 {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(unreadColor).Render(fmt.Sprintf("%d pending approvals", n)))
	}

	return lipgloss.NewStyle().
		Width(sidebarCols).
		Height(m.height).
		Padding(0, 1).
		Background(sidebarBg).
		Render(strings.Join(lines, "\n"))
}
