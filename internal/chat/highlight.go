package chat

import (
	"bytes"
	"os"
	"strings"

	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

const chromaStyleName = "dracula"

// codeView colors the code agents post into a channel. Fenced blocks are
// colored in every message kind except system notices; a tool result
// without fences is colored as a single block. Bodies are cached per
// message id until their content changes.
type codeView struct {
	style   *chroma.Style
	enabled bool
	cache   map[int64]renderedBody
}

type renderedBody struct {
	content string
	out     string
}

func newCodeView() *codeView {
	style := styles.Get(chromaStyleName)
	if style == nil {
		style = styles.Fallback
	}
	return &codeView{
		style:   style,
		enabled: os.Getenv("NO_COLOR") == "",
		cache:   make(map[int64]renderedBody),
	}
}

// body returns the display body of msg. A nil view leaves it as typed.
func (v *codeView) body(msg types.Message) string {
	if v == nil || !v.enabled || msg.Content == "" || msg.MsgType == types.MessageTypeSystem {
		return msg.Content
	}
	if c, ok := v.cache[msg.ID]; ok && c.content == msg.Content {
		return c.out
	}
	var out string
	if msg.MsgType == types.MessageTypeToolResult && !hasFence(msg.Content) {
		out = v.highlight(msg.Content, "")
	} else {
		out = v.blocks(msg.Content)
	}
	v.cache[msg.ID] = renderedBody{content: msg.Content, out: out}
	return out
}

// prune drops cached bodies of messages that left the stream.
func (v *codeView) prune(rows []stream.Row) {
	if v == nil || len(v.cache) <= len(rows) {
		return
	}
	shown := make(map[int64]bool, len(rows))
	for _, r := range rows {
		shown[r.Message.ID] = true
	}
	for id := range v.cache {
		if !shown[id] {
			delete(v.cache, id)
		}
	}
}

// blocks colors the inside of closed fences. An unclosed fence keeps its
// lines as typed.
func (v *codeView) blocks(body string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	var open *codeFence
	var code []string
	for _, line := range lines {
		if open == nil {
			if f, ok := openFence(line); ok {
				open = &f
				code = code[:0]
			}
			out = append(out, line)
			continue
		}
		if !open.closedBy(line) {
			code = append(code, line)
			continue
		}
		if len(code) > 0 {
			out = append(out, v.highlight(strings.Join(code, "\n"), open.lang))
		}
		out = append(out, line)
		open = nil
	}
	if open != nil {
		out = append(out, code...)
	}
	return strings.Join(out, "\n")
}

type codeFence struct {
	marker string
	lang   string
}

func hasFence(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if _, ok := openFence(line); ok {
			return true
		}
	}
	return false
}

func openFence(line string) (codeFence, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if len(trimmed) < 3 || (trimmed[0] != '`' && trimmed[0] != '~') {
		return codeFence{}, false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == trimmed[0] {
		n++
	}
	if n < 3 {
		return codeFence{}, false
	}
	f := codeFence{marker: trimmed[:n]}
	if parts := strings.Fields(trimmed[n:]); len(parts) > 0 {
		f.lang = parts[0]
	}
	return f, true
}

// closedBy reports whether line is a run of the fence character at least
// as long as the opening marker.
func (f codeFence) closedBy(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(f.marker) {
		return false
	}
	return strings.Trim(trimmed, f.marker[:1]) == ""
}

func (v *codeView) highlight(code, lang string) string {
	iterator, err := lexerFor(code, lang).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := formatters.TTY256.Format(&buf, v.style, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// lexerFor picks the fence language, then a patch lexer for unlabeled
// diffs, then content analysis.
func lexerFor(code, lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil && looksLikeDiff(code) {
		lexer = lexers.Get("diff")
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func looksLikeDiff(code string) bool {
	first, _, _ := strings.Cut(strings.TrimLeft(code, "\n"), "\n")
	return strings.HasPrefix(first, "diff --git ") ||
		strings.HasPrefix(first, "--- ") ||
		strings.HasPrefix(first, "@@ ")
}
