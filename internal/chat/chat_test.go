package chat

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/charmbracelet/lipgloss"
)

func TestParseSlash(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		name string
		args []string
		rest string
	}{
		{"/join general", true, "join", []string{"general"}, "general"},
		{"  /REACT 12 👍 ", true, "react", []string{"12", "👍"}, "12 👍"},
		{"/new design review", true, "new", []string{"design", "review"}, "design review"},
		{"/help", true, "help", nil, ""},
		{"/thread   ", true, "thread", nil, ""},
		{"hello /join", false, "", nil, ""},
		{"//not a command", false, "", nil, ""},
		{"/", false, "", nil, ""},
	}
	for _, tt := range tests {
		got, ok := parseSlash(tt.in)
		if ok != tt.ok {
			t.Errorf("parseSlash(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.name != tt.name || got.rest != tt.rest || !reflect.DeepEqual(got.args, tt.args) {
			t.Errorf("parseSlash(%q) = %+v, want name=%q args=%v rest=%q", tt.in, got, tt.name, tt.args, tt.rest)
		}
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"#7", 7, false},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseID(%q) = %d, %v, want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestOpenFence(t *testing.T) {
	tests := []struct {
		line   string
		marker string
		lang   string
		ok     bool
	}{
		{"```go", "```", "go", true},
		{"  ~~~~ python extra", "~~~~", "python", true},
		{"```", "```", "", true},
		{"``not", "", "", false},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		f, ok := openFence(tt.line)
		if f.marker != tt.marker || f.lang != tt.lang || ok != tt.ok {
			t.Errorf("openFence(%q) = %+v, %v, want %q, %q, %v", tt.line, f, ok, tt.marker, tt.lang, tt.ok)
		}
	}
}

func TestFenceClosedBy(t *testing.T) {
	f := codeFence{marker: "~~~~"}
	tests := []struct {
		line string
		want bool
	}{
		{"~~~~", true},
		{"  ~~~~~ ", true},
		{"~~~", false},
		{"```", false},
		{"~~~~ go", false},
	}
	for _, tt := range tests {
		if got := f.closedBy(tt.line); got != tt.want {
			t.Errorf("closedBy(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestCodeViewBody(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	v := newCodeView()

	fenced := "intro\n```go\nfunc main() {}\n```\noutro"
	got := v.body(types.Message{ID: 1, Content: fenced})
	for _, want := range []string{"intro", "```go", "main", "outro"} {
		if !strings.Contains(got, want) {
			t.Errorf("body() missing %q in %q", want, got)
		}
	}
	if got == fenced {
		t.Errorf("body() left fenced code uncolored")
	}

	unclosed := "```go\nfunc main() {}"
	if got := v.body(types.Message{ID: 2, Content: unclosed}); got != unclosed {
		t.Errorf("body(unclosed) = %q, want unchanged", got)
	}

	notice := types.Message{ID: 3, MsgType: types.MessageTypeSystem, Content: fenced}
	if got := v.body(notice); got != fenced {
		t.Errorf("body(system) = %q, want unchanged", got)
	}

	tool := types.Message{ID: 4, MsgType: types.MessageTypeToolResult, Content: "diff --git a/x b/x\n+added"}
	if got := v.body(tool); got == tool.Content || !strings.Contains(got, "added") {
		t.Errorf("body(tool_result) = %q, want colored diff", got)
	}
	if got := v.body(types.Message{ID: 5, Content: "just text"}); got != "just text" {
		t.Errorf("body(plain) = %q, want unchanged", got)
	}

	var nilView *codeView
	if got := nilView.body(types.Message{Content: fenced}); got != fenced {
		t.Errorf("nil view body() = %q, want unchanged", got)
	}

	t.Setenv("NO_COLOR", "1")
	if got := newCodeView().body(types.Message{ID: 1, Content: fenced}); got != fenced {
		t.Errorf("body() with NO_COLOR = %q, want unchanged", got)
	}
}

func TestCodeViewCacheFollowsEdits(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	v := newCodeView()
	first := v.body(types.Message{ID: 7, Content: "```\nalpha\n```"})
	edited := v.body(types.Message{ID: 7, Content: "```\nbeta\n```"})
	if first == edited || !strings.Contains(edited, "beta") {
		t.Errorf("body() after edit = %q, want new content", edited)
	}
	v.body(types.Message{ID: 8, Content: "x"})
	v.prune([]stream.Row{{Message: types.Message{ID: 8}}})
	if _, ok := v.cache[7]; ok {
		t.Errorf("prune kept a message no longer shown")
	}
	if _, ok := v.cache[8]; !ok {
		t.Errorf("prune dropped a shown message")
	}
}

func TestRenderRows(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	parent := int64(1)
	rows := []stream.Row{
		{
			Message:   types.Message{ID: 1, Sender: "a1", Content: "plan ready", CreatedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)},
			ShowTime:  true,
			Replies:   2,
			Reactions: types.ReactionSummary{"👍": {Count: 2}},
		},
		{Message: types.Message{ID: 2, Sender: "user", Content: "ship it", ParentID: &parent}},
	}
	var marked []string
	out := renderRows(rows, renderOptions{
		width: 60,
		names: map[string]string{"a1": "Builder"},
		mark: func(id, s string) string {
			marked = append(marked, id)
			return s
		},
	})

	for _, want := range []string{"Builder", "#1", "plan ready", "2 replies", "👍 2", "↳ #1", "ship it"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderRows() missing %q in:\n%s", want, out)
		}
	}
	if want := []string{"msg-1", "msg-2"}; !reflect.DeepEqual(marked, want) {
		t.Errorf("marked zones = %v, want %v", marked, want)
	}
	if !strings.Contains(renderRows(nil, renderOptions{width: 40}), "No messages") {
		t.Error("renderRows(nil) missing empty state")
	}
}

func TestFormatReactionsSortedAndSkipsZero(t *testing.T) {
	got := formatReactions(types.ReactionSummary{"🎉": {Count: 1}, "👍": {Count: 3}, "👀": {Count: 0}})
	if got != "🎉 1  👍 3" {
		t.Errorf("formatReactions() = %q, want %q", got, "🎉 1  👍 3")
	}
}

func TestTypingLine(t *testing.T) {
	names := map[string]string{"a1": "Builder"}
	tests := []struct {
		agents []string
		want   string
	}{
		{nil, ""},
		{[]string{"a1"}, "Builder is typing…"},
		{[]string{"a1", "a2"}, "Builder, a2 are typing…"},
	}
	for _, tt := range tests {
		if got := typingLine(tt.agents, names); got != tt.want {
			t.Errorf("typingLine(%v) = %q, want %q", tt.agents, got, tt.want)
		}
	}
}

func TestComposerInfo(t *testing.T) {
	root, reply := int64(3), int64(9)
	c := stream.Composer{
		ThreadRoot:  &root,
		ReplyTo:     &reply,
		Attachments: []stream.Attachment{{Name: "a.png"}, {Name: "b.txt"}},
	}
	want := "thread #3 · reply to #9 · 2 file(s): a.png, b.txt"
	if got := composerInfo(c); got != want {
		t.Errorf("composerInfo() = %q, want %q", got, want)
	}
	if got := composerInfo(stream.Composer{}); got != "" {
		t.Errorf("composerInfo(empty) = %q, want empty", got)
	}
}

func TestAlignStatusLine(t *testing.T) {
	tests := []struct {
		left, right string
		width       int
		want        string
	}{
		{"ok", "help", 10, "ok    help"},
		{"too long here", "help", 10, "too long here"},
		{"ok", "", 10, "ok"},
	}
	for _, tt := range tests {
		if got := alignStatusLine(tt.left, tt.right, tt.width); got != tt.want {
			t.Errorf("alignStatusLine(%q, %q, %d) = %q, want %q", tt.left, tt.right, tt.width, got, tt.want)
		}
	}
}

func TestColorForSender(t *testing.T) {
	colors := buildColorMap([]types.Agent{{ID: "a1"}, {ID: "a2", Color: "#ff0000"}})
	if got := colorForSender("a1", colors); got != agentPalette[0] {
		t.Errorf("colorForSender(a1) = %v, want %v", got, agentPalette[0])
	}
	if got := colorForSender("a2", colors); got != lipgloss.Color("#ff0000") {
		t.Errorf("colorForSender(a2) = %v, want #ff0000", got)
	}
	if got := colorForSender("user", colors); got != userColor {
		t.Errorf("colorForSender(user) = %v, want %v", got, userColor)
	}
	if a, b := colorForSender("stranger", colors), colorForSender("stranger", colors); a != b {
		t.Errorf("colorForSender(stranger) unstable: %v vs %v", a, b)
	}
}

func TestContrastTextColor(t *testing.T) {
	tests := []struct {
		in   lipgloss.Color
		want lipgloss.Color
	}{
		{lipgloss.Color("16"), lipgloss.Color("231")},
		{lipgloss.Color("231"), lipgloss.Color("16")},
		{lipgloss.Color("#abcdef"), lipgloss.Color("231")},
	}
	for _, tt := range tests {
		if got := contrastTextColor(tt.in); got != tt.want {
			t.Errorf("contrastTextColor(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInputHeight(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 1},
		{"a\nb", 2},
		{strings.Repeat("x\n", 20), inputMaxHeight},
	}
	for _, tt := range tests {
		if got := inputHeight(tt.value); got != tt.want {
			t.Errorf("inputHeight(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestChannelLabel(t *testing.T) {
	if got := channelLabel(types.Channel{ID: "c1", Name: "general", Type: types.ChannelGroup}); got != "#general" {
		t.Errorf("channelLabel(group) = %q, want #general", got)
	}
	if got := channelLabel(types.Channel{ID: "dm-a1", Type: types.ChannelDM}); got != "@dm-a1" {
		t.Errorf("channelLabel(dm) = %q, want @dm-a1", got)
	}
}
