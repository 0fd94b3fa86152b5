package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/adamavenir/aioffice/internal/workspace"
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

var clipboardWrite = clipboard.WriteAll

type slashCommand struct {
	name string
	args []string
	rest string
}

// parseSlash splits "/name args..." input. rest keeps the raw text after
// the name.
func parseSlash(input string) (slashCommand, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return slashCommand{}, false
	}
	body := input[1:]
	name, rest, _ := strings.Cut(body, " ")
	if name == "" {
		return slashCommand{}, false
	}
	cmd := slashCommand{name: strings.ToLower(name), rest: strings.TrimSpace(rest)}
	if cmd.rest != "" {
		cmd.args = strings.Fields(cmd.rest)
	}
	return cmd, true
}

type helpEntry struct {
	usage string
	desc  string
}

var commandHelp = []helpEntry{
	{"/join <channel>", "switch channel"},
	{"/new <name>", "create a channel"},
	{"/reply <id>", "reply to a message"},
	{"/thread [id]", "post into a thread, no id leaves it"},
	{"/react <id> <emoji>", "toggle a reaction"},
	{"/copy <id>", "copy a message to the clipboard"},
	{"/attach <path>", "queue a file for the next message"},
	{"/mode <mode>", "split, full-ide, focus-chat, focus-preview, focus-files"},
	{"/move <task> <status>", "move a board task"},
	{"/spec", "spec status"},
	{"/density <compact|comfortable>", "row spacing"},
	{"/reset", "reset overlays and layout"},
	{"/quit", "leave"},
}

func renderHelp(width int) string {
	var b strings.Builder
	pad := 0
	for _, h := range commandHelp {
		if n := len(h.usage); n > pad {
			pad = n
		}
	}
	for _, h := range commandHelp {
		line := fmt.Sprintf("  %-*s  %s", pad, h.usage, h.desc)
		b.WriteString(truncateLine(line, width))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// actionMsg reports the outcome of a background action.
type actionMsg struct {
	status string
	err    error
}

func action(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn(context.Background())
		return actionMsg{status: status, err: err}
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad message id %q", s)
	}
	return id, nil
}

func (m *Model) runCommand(cmd slashCommand) tea.Cmd {
	ws := m.ws
	need := func(n int, usage string) bool {
		if len(cmd.args) < n {
			m.status = "usage: " + usage
			return false
		}
		return true
	}

	switch cmd.name {
	case "help", "?":
		m.showHelp = !m.showHelp
		m.resize()
	case "quit", "q":
		return tea.Quit
	case "join", "j":
		if !need(1, "/join <channel>") {
			return nil
		}
		return m.selectChannel(m.resolveChannel(cmd.args[0]))
	case "new":
		if !need(1, "/new <name>") {
			return nil
		}
		return action(func(ctx context.Context) (string, error) {
			ch, err := ws.CreateChannel(ctx, cmd.rest)
			if err != nil {
				return "", err
			}
			if err := ws.SelectChannel(ctx, ch.ID); err != nil {
				return "", err
			}
			return "created #" + ch.Name, nil
		})
	case "reply", "r":
		if !need(1, "/reply <id>") {
			return nil
		}
		id, err := parseID(cmd.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		m.setComposer(func(c *stream.Composer) { c.ReplyTo = &id })
		m.status = replyStatus(id)
	case "thread", "t":
		if len(cmd.args) == 0 {
			m.setComposer(func(c *stream.Composer) { c.ThreadRoot = nil })
			m.status = "left thread"
			return nil
		}
		id, err := parseID(cmd.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		m.setComposer(func(c *stream.Composer) { c.ThreadRoot = &id })
		m.status = fmt.Sprintf("in thread #%d", id)
	case "react":
		if !need(2, "/react <id> <emoji>") {
			return nil
		}
		id, err := parseID(cmd.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		emoji := cmd.args[1]
		return action(func(ctx context.Context) (string, error) {
			return "", ws.Stream.ToggleReaction(ctx, id, emoji)
		})
	case "copy":
		if !need(1, "/copy <id>") {
			return nil
		}
		id, err := parseID(cmd.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		for _, msg := range ws.Stream.Messages() {
			if msg.ID == id {
				if err := clipboardWrite(msg.Content); err != nil {
					m.status = "copy failed: " + err.Error()
					return nil
				}
				m.status = "Copied message to clipboard."
				return nil
			}
		}
		m.status = fmt.Sprintf("no message #%d", id)
	case "attach":
		if !need(1, "/attach <path>") {
			return nil
		}
		a, err := stream.FileAttachment(cmd.rest)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		if err := ws.Stream.UpdateComposer(func(c *stream.Composer) error { return c.AddAttachments(a) }); err != nil {
			m.status = err.Error()
			return nil
		}
		m.status = "attached " + a.Name
	case "mode":
		if !need(1, "/mode <mode>") {
			return nil
		}
		m.status = "mode " + string(ws.SetMode(cmd.args[0]))
	case "move":
		if !need(2, "/move <task> <status>") {
			return nil
		}
		id, err := parseID(cmd.args[0])
		if err != nil {
			m.status = err.Error()
			return nil
		}
		status := types.TaskStatus(cmd.args[1])
		return action(func(ctx context.Context) (string, error) {
			if err := ws.MoveTask(ctx, id, status); err != nil {
				return "", err
			}
			return fmt.Sprintf("task %d → %s", id, status), nil
		})
	case "spec":
		ed := ws.Spec()
		if ed == nil {
			m.status = "no spec for this channel"
			return nil
		}
		c := ed.Completeness()
		m.status = fmt.Sprintf("spec %s · %d%% complete", ed.Status(), c.Percent)
	case "density":
		if !need(1, "/density <compact|comfortable>") {
			return nil
		}
		if err := ws.SetDensity(workspace.Density(cmd.args[0])); err != nil {
			m.status = err.Error()
			return nil
		}
		m.refreshViewport(false)
	case "reset":
		ws.ResetUI()
		m.status = "layout reset"
	default:
		m.status = "unknown command /" + cmd.name
	}
	return nil
}

func (m *Model) setComposer(fn func(c *stream.Composer)) {
	_ = m.ws.Stream.UpdateComposer(func(c *stream.Composer) error {
		fn(c)
		return nil
	})
}

// resolveChannel accepts an id, a name, or a #name.
func (m *Model) resolveChannel(arg string) string {
	name := strings.TrimPrefix(arg, "#")
	for _, c := range m.snap.Channels {
		if c.ID == arg || strings.EqualFold(c.Name, name) {
			return c.ID
		}
	}
	return arg
}

func replyStatus(id int64) string {
	return fmt.Sprintf("replying to #%d · esc to cancel", id)
}
