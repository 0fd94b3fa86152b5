package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func messageZone(id int64) string { return fmt.Sprintf("msg-%d", id) }

// renderOptions carries what message rendering needs from the model.
type renderOptions struct {
	width    int
	compact  bool
	colorMap map[string]lipgloss.Color
	names    map[string]string
	mark     func(id string, s string) string
	code     *codeView
}

func agentNames(agents []types.Agent) map[string]string {
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		name := a.DisplayName
		if name == "" {
			name = a.ID
		}
		if a.Emoji != "" {
			name = a.Emoji + " " + name
		}
		names[a.ID] = name
	}
	return names
}

func renderRows(rows []stream.Row, opts renderOptions) string {
	if len(rows) == 0 {
		return lipgloss.NewStyle().Foreground(dimColor).Render("No messages yet.")
	}
	width := opts.width
	if width < 10 {
		width = 10
	}
	blocks := make([]string, 0, len(rows))
	for _, row := range rows {
		block := renderRow(row, width, opts)
		if opts.mark != nil {
			block = opts.mark(messageZone(row.Message.ID), block)
		}
		blocks = append(blocks, block)
	}
	sep := "\n\n"
	if opts.compact {
		sep = "\n"
	}
	return strings.Join(blocks, sep)
}

func renderRow(row stream.Row, width int, opts renderOptions) string {
	msg := row.Message
	dim := lipgloss.NewStyle().Foreground(dimColor)

	var lines []string
	if row.ShowTime && !msg.CreatedAt.IsZero() {
		lines = append(lines, dim.Render(msg.CreatedAt.Local().Format("Jan 2 15:04")))
	}

	sender := opts.names[msg.Sender]
	if sender == "" {
		sender = msg.Sender
	}
	byline := lipgloss.NewStyle().Bold(true).Foreground(colorForSender(msg.Sender, opts.colorMap)).Render(sender)
	byline += dim.Render(fmt.Sprintf(" #%d", msg.ID))
	if msg.ParentID != nil {
		byline += dim.Render(fmt.Sprintf(" ↳ #%d", *msg.ParentID))
	}
	if msg.MsgType != "" && msg.MsgType != types.MessageTypeMessage {
		byline += " " + lipgloss.NewStyle().Foreground(accentColor).Render("["+string(msg.MsgType)+"]")
	}
	lines = append(lines, byline)

	body := opts.code.body(msg)
	style := lipgloss.NewStyle().Foreground(textColor)
	if msg.MsgType == types.MessageTypeSystem {
		style = dim
	}
	lines = append(lines, style.Render(ansi.Wrap(body, width, "")))

	if footer := rowFooter(row); footer != "" {
		lines = append(lines, dim.Render(ansi.Wrap(footer, width, "")))
	}
	return strings.Join(lines, "\n")
}

func rowFooter(row stream.Row) string {
	var parts []string
	if row.Replies == 1 {
		parts = append(parts, "1 reply")
	} else if row.Replies > 1 {
		parts = append(parts, fmt.Sprintf("%d replies", row.Replies))
	}
	if r := formatReactions(row.Reactions); r != "" {
		parts = append(parts, r)
	}
	return strings.Join(parts, " · ")
}

func formatReactions(summary types.ReactionSummary) string {
	if len(summary) == 0 {
		return ""
	}
	emojis := make([]string, 0, len(summary))
	for emoji, c := range summary {
		if c.Count > 0 {
			emojis = append(emojis, emoji)
		}
	}
	sort.Strings(emojis)
	parts := make([]string, 0, len(emojis))
	for _, e := range emojis {
		parts = append(parts, fmt.Sprintf("%s %d", e, summary[e].Count))
	}
	return strings.Join(parts, "  ")
}

func typingLine(agents []string, names map[string]string) string {
	if len(agents) == 0 {
		return ""
	}
	display := make([]string, len(agents))
	for i, a := range agents {
		display[i] = a
		if n := names[a]; n != "" {
			display[i] = n
		}
	}
	verb := "is"
	if len(display) > 1 {
		verb = "are"
	}
	return strings.Join(display, ", ") + " " + verb + " typing…"
}

func truncateLine(line string, width int) string {
	if width <= 0 {
		return line
	}
	return ansi.Truncate(line, width, "…")
}
