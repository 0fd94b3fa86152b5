package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/specdoc"
	"github.com/adamavenir/aioffice/internal/types"
)

// fakeOffice serves the endpoints the commands call.
type fakeOffice struct {
	mu       sync.Mutex
	channels []types.Channel
	activity []types.ChannelActivity
	projects map[string]types.ActiveProject
	spec     types.SpecDocument
	history  []types.SpecSnapshot
	histDown bool
	saved    []string
	approved int
	created  []api.CreateFromPrompt
}

func newFakeOffice() *fakeOffice {
	return &fakeOffice{projects: make(map[string]types.ActiveProject)}
}

func (f *fakeOffice) approvals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved
}

func (f *fakeOffice) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeOffice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := r.URL.Path
	switch {
	case p == "/api/channels" && r.Method == http.MethodGet:
		f.reply(w, f.channels)
	case p == "/api/channels" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ch := types.Channel{ID: "ch-" + body.Name, Name: body.Name, Type: types.ChannelGroup}
		f.channels = append(f.channels, ch)
		f.reply(w, ch)
	case p == "/api/channels/activity":
		f.reply(w, f.activity)
	case strings.HasPrefix(p, "/api/projects/active/"):
		proj, ok := f.projects[strings.TrimPrefix(p, "/api/projects/active/")]
		if !ok {
			http.Error(w, `{"detail":"no project"}`, http.StatusNotFound)
			return
		}
		f.reply(w, proj)
	case p == "/api/projects/create_from_prompt":
		var req api.CreateFromPrompt
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.created = append(f.created, req)
		f.reply(w, types.ProjectCreated{Project: req.ProjectName, Channel: "main"})
	case p == "/api/spec/current" && r.Method == http.MethodGet:
		f.reply(w, f.spec)
	case p == "/api/spec/current" && r.Method == http.MethodPost:
		var body struct {
			SpecMD string `json:"spec_md"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.saved = append(f.saved, body.SpecMD)
		f.spec.SpecMD = body.SpecMD
		f.spec.SpecVersion++
		f.spec.Status = types.SpecDraft
		f.reply(w, f.spec)
	case p == "/api/spec/approve":
		f.approved++
		f.spec.Status = types.SpecApproved
		f.reply(w, f.spec)
	case p == "/api/spec/history":
		if f.histDown {
			http.Error(w, `{"detail":"history offline"}`, http.StatusServiceUnavailable)
			return
		}
		f.reply(w, f.history)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"not found"}`)
	}
}

// setupOffice isolates config and state directories and starts office.
func setupOffice(t *testing.T, office *fakeOffice) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv(serverEnv, "")

	srv := httptest.NewServer(office)
	t.Cleanup(srv.Close)
	return srv.URL
}

// run executes a fresh root command against server.
func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	return executeCommand(NewRootCmd("test"), append(args, "--server", server)...)
}

// runJSON executes with --json and decodes stdout into v.
func runJSON(t *testing.T, server string, v any, args ...string) {
	t.Helper()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := NewRootCmd("test")
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append(args, "--server", server, "--json"))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, stderr.String())
	}
	if err := json.Unmarshal(stdout.Bytes(), v); err != nil {
		t.Fatalf("%v: decode %q: %v", args, stdout.String(), err)
	}
}

func readySpecMD() string {
	var b strings.Builder
	for _, sec := range specdoc.Schema {
		b.WriteString("## " + sec.Heading + "\n- decided\n\n")
	}
	return b.String()
}

func TestChannelsCommand(t *testing.T) {
	office := newFakeOffice()
	server := setupOffice(t, office)

	output, err := run(t, server, "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if !strings.Contains(output, "No channels") {
		t.Errorf("output = %q, want empty notice", output)
	}

	if _, err := run(t, server, "channels", "create", "design"); err != nil {
		t.Fatalf("channels create: %v", err)
	}
	at := time.Now().Add(-time.Hour)
	office.mu.Lock()
	office.channels = append(office.channels, types.Channel{ID: "dm-1", Name: "builder", Type: types.ChannelDM, LastActivityAt: &at})
	office.mu.Unlock()

	output, err = run(t, server, "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	for _, want := range []string{"#design", "@builder", "never", "hour ago"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestUnreadCommand(t *testing.T) {
	office := newFakeOffice()
	office.activity = []types.ChannelActivity{
		{ChannelID: "main", LatestMessageID: 10},
		{ChannelID: "ops", LatestMessageID: 4},
	}
	server := setupOffice(t, office)

	output, err := run(t, server, "unread")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if !strings.Contains(output, "All caught up") {
		t.Errorf("first run output = %q, want channels to start read", output)
	}

	office.mu.Lock()
	office.activity[0].LatestMessageID = 12
	office.mu.Unlock()

	var entries []unreadEntry
	runJSON(t, server, &entries, "unread")
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	got := entries[0]
	if got.Channel != "main" || !got.Unread || got.Seen != 10 || got.Latest != 12 {
		t.Errorf("main = %+v, want unread 10 -> 12", got)
	}
	if entries[1].Unread {
		t.Errorf("ops = %+v, want read", entries[1])
	}

	output, err = run(t, server, "unread", "--mark-read")
	if err != nil {
		t.Fatalf("unread --mark-read: %v", err)
	}
	if !strings.Contains(output, "Marked 2 channel(s) read") {
		t.Errorf("output = %q", output)
	}

	output, err = run(t, server, "unread")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if !strings.Contains(output, "All caught up") {
		t.Errorf("after mark-read output = %q", output)
	}
}

func TestSpecCheckAndApprove(t *testing.T) {
	office := newFakeOffice()
	office.spec = types.SpecDocument{Project: "todo", Status: types.SpecDraft, SpecVersion: 3, SpecMD: "## Problem / Goal\n- track todos\n"}
	server := setupOffice(t, office)

	output, err := run(t, server, "spec", "check", "main")
	if err == nil {
		t.Fatalf("spec check on incomplete spec succeeded:\n%s", output)
	}
	if !strings.Contains(output, "missing:") || !strings.Contains(output, "completeness is") {
		t.Errorf("output = %q, want missing sections and gate reason", output)
	}

	office.mu.Lock()
	office.spec.SpecMD = readySpecMD()
	office.mu.Unlock()

	var check struct {
		Approvable bool   `json:"approvable"`
		Reason     string `json:"reason"`
	}
	runJSON(t, server, &check, "spec", "check", "main")
	if !check.Approvable || check.Reason != "" {
		t.Errorf("check = %+v, want approvable", check)
	}

	output, err = run(t, server, "spec", "approve", "main", "--confirm", "yes")
	if err == nil {
		t.Fatal("approve with wrong phrase succeeded")
	}
	if !strings.Contains(output, specdoc.ApprovePhrase) {
		t.Errorf("output = %q, want confirm phrase hint", output)
	}
	if n := office.approvals(); n != 0 {
		t.Fatalf("server approve called %d times before a valid phrase", n)
	}

	output, err = run(t, server, "spec", "approve", "main", "--confirm", specdoc.ApprovePhrase)
	if err != nil {
		t.Fatalf("approve: %v\n%s", err, output)
	}
	if n := office.approvals(); n != 1 {
		t.Errorf("approved = %d, want 1", n)
	}
	if !strings.Contains(output, "approved") {
		t.Errorf("output = %q, want approved status", output)
	}
}

func TestSpecSaveFromFile(t *testing.T) {
	office := newFakeOffice()
	office.spec = types.SpecDocument{Project: "todo", Status: types.SpecNone}
	server := setupOffice(t, office)

	path := filepath.Join(t.TempDir(), "draft.md")
	if err := os.WriteFile(path, []byte(readySpecMD()), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	var report specReport
	runJSON(t, server, &report, "spec", "save", "--in", "main", "--file", path)
	if report.Status != string(types.SpecDraft) || report.Version != 1 {
		t.Errorf("report = %+v, want draft v1", report)
	}
	if report.Completeness.Percent != 100 {
		t.Errorf("percent = %d, want 100", report.Completeness.Percent)
	}
	office.mu.Lock()
	saves := len(office.saved)
	office.mu.Unlock()
	if saves != 1 {
		t.Fatalf("saves = %d, want 1", saves)
	}

	output, err := run(t, server, "spec", "save", "main")
	if err != nil {
		t.Fatalf("spec save: %v", err)
	}
	if !strings.Contains(output, "Nothing to save") {
		t.Errorf("output = %q, want nothing to save", output)
	}
}

func TestSpecHistoryFallsBackToCache(t *testing.T) {
	office := newFakeOffice()
	office.spec = types.SpecDocument{Project: "todo", Status: types.SpecDraft, SpecVersion: 2}
	office.history = []types.SpecSnapshot{
		{ID: 2, Kind: "spec", SpecVersion: 2, Content: "## Features\n- a\n- b\n", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: 1, Kind: "spec", SpecVersion: 1, Content: "## Features\n- a\n", CreatedAt: time.Now().Add(-time.Hour)},
	}
	server := setupOffice(t, office)

	output, err := run(t, server, "spec", "history", "main")
	if err != nil {
		t.Fatalf("spec history: %v", err)
	}
	if !strings.Contains(output, "initial") {
		t.Errorf("output = %q, want initial snapshot", output)
	}

	office.mu.Lock()
	office.histDown = true
	office.mu.Unlock()

	output, err = run(t, server, "spec", "history", "main")
	if err != nil {
		t.Fatalf("spec history offline: %v", err)
	}
	if !strings.Contains(output, "showing cached history") || !strings.Contains(output, "history offline") {
		t.Errorf("output = %q, want cached notice", output)
	}
}

func TestSpecRequiresChannel(t *testing.T) {
	server := setupOffice(t, newFakeOffice())
	output, err := run(t, server, "spec", "show")
	if err == nil {
		t.Fatal("spec show without channel succeeded")
	}
	if !strings.Contains(output, "channel required") {
		t.Errorf("output = %q", output)
	}
}

func TestLayoutCommands(t *testing.T) {
	office := newFakeOffice()
	office.projects["main"] = types.ActiveProject{Channel: "main", Project: "todo", Branch: "dev"}
	server := setupOffice(t, office)

	var r layoutReport
	runJSON(t, server, &r, "layout", "show", "--in", "main")
	if r.Project != "todo" || r.Branch != "dev" || r.Mode != "split" {
		t.Errorf("show = %+v, want todo@dev split", r)
	}

	runJSON(t, server, &r, "layout", "set", "--project", "todo", "--branch", "dev", "--ratio", "0.3", "--collapse", "sidebar")
	if r.Ratio != 0.3 || !r.Collapsed["sidebar"] {
		t.Errorf("set = %+v, want ratio 0.3 with sidebar collapsed", r)
	}

	r = layoutReport{}
	runJSON(t, server, &r, "layout", "show", "--in", "main")
	if r.Ratio != 0.3 {
		t.Errorf("ratio after reopen = %v, want 0.3", r.Ratio)
	}

	runJSON(t, server, &r, "layout", "set", "--project", "todo", "--branch", "dev", "--mode", "full-ide")
	if r.Mode != "full-ide" || r.LeftRatio != 0.2 || r.CenterRatio != 0.5 {
		t.Errorf("full-ide = %+v, want default ratios", r)
	}

	r = layoutReport{}
	runJSON(t, server, &r, "layout", "reset", "--project", "todo", "--branch", "dev")
	if r.Mode != "full-ide" {
		t.Errorf("reset mode = %q, want full-ide kept", r.Mode)
	}

	if _, err := run(t, server, "layout", "show"); err == nil {
		t.Error("layout show without scope succeeded")
	}
}

func TestLayoutPatch(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		mode    string
		wantErr bool
	}{
		{"empty", nil, "", false},
		{"mode", []string{"--mode", " Focus-Chat "}, "focus-chat", false},
		{"focus alias", []string{"--mode", "focus"}, "focus", false},
		{"unknown mode", []string{"--mode", "grid"}, "", true},
		{"ratio", []string{"--ratio", "0.4"}, "", false},
		{"ratio out of range", []string{"--ratio", "1.2"}, "", true},
		{"crowded ide", []string{"--left", "0.5", "--center", "0.5"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newLayoutSetCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			p, mode, err := layoutPatch(cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("layoutPatch() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if mode != tt.mode {
				t.Errorf("mode = %q, want %q", mode, tt.mode)
			}
			if tt.name == "ratio" && (p.Ratio == nil || *p.Ratio != 0.4) {
				t.Errorf("Ratio = %v, want 0.4", p.Ratio)
			}
			if tt.name == "empty" && (p.Ratio != nil || p.Collapsed != nil) {
				t.Errorf("patch = %+v, want empty", p)
			}
		})
	}
}

func TestCreateCommand(t *testing.T) {
	office := newFakeOffice()
	server := setupOffice(t, office)

	output, err := run(t, server, "create", "Build a Todo app", "--force")
	if err != nil {
		t.Fatalf("create: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Created project build-a-todo-app") {
		t.Errorf("output = %q", output)
	}
	office.mu.Lock()
	created := office.created
	office.mu.Unlock()
	if len(created) != 1 || created[0].Prompt != "Build a Todo app" {
		t.Errorf("created = %+v", created)
	}
}

func TestCreateRequest(t *testing.T) {
	tests := []struct {
		prompt, name, template string
		want                   string
		wantErr                bool
	}{
		{"Build a Todo app\nwith tags", "", "", "build-a-todo-app", false},
		{"anything", "My Project!", " web ", "my-project", false},
		{"", "", "", "", true},
		{"!!!", "", "", "", true},
	}
	for _, tt := range tests {
		req, err := createRequest(tt.prompt, tt.name, tt.template)
		if (err != nil) != tt.wantErr {
			t.Errorf("createRequest(%q, %q) err = %v, wantErr %v", tt.prompt, tt.name, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if req.ProjectName != tt.want {
			t.Errorf("createRequest(%q, %q) name = %q, want %q", tt.prompt, tt.name, req.ProjectName, tt.want)
		}
		if req.Template != strings.TrimSpace(tt.template) {
			t.Errorf("template = %q, want trimmed", req.Template)
		}
	}
}

func TestPostTarget(t *testing.T) {
	tests := []struct {
		in      string
		args    []string
		channel string
		text    string
		wantErr bool
	}{
		{"", []string{"#main", "hi"}, "main", "hi", false},
		{"ops", []string{"hello"}, "ops", "hello", false},
		{"", []string{"hello"}, "", "", true},
		{"", []string{"#", "hi"}, "", "", true},
	}
	for _, tt := range tests {
		ch, text, err := postTarget(tt.in, tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("postTarget(%q, %v) err = %v, wantErr %v", tt.in, tt.args, err, tt.wantErr)
			continue
		}
		if ch != tt.channel || text != tt.text {
			t.Errorf("postTarget(%q, %v) = %q, %q, want %q, %q", tt.in, tt.args, ch, text, tt.channel, tt.text)
		}
	}
}

func TestStateCommands(t *testing.T) {
	office := newFakeOffice()
	server := setupOffice(t, office)

	output, err := run(t, server, "state", "list")
	if err != nil {
		t.Fatalf("state list: %v", err)
	}
	if !strings.Contains(output, "No saved state") {
		t.Errorf("output = %q", output)
	}

	if _, err := run(t, server, "layout", "set", "--project", "todo", "--ratio", "0.3"); err != nil {
		t.Fatalf("layout set: %v", err)
	}
	if _, err := run(t, server, "layout", "set", "--project", "blog", "--ratio", "0.6"); err != nil {
		t.Fatalf("layout set: %v", err)
	}

	var entries []stateEntry
	runJSON(t, server, &entries, "state", "list", "workspace-layout-state")
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	for _, e := range entries {
		if e.Domain != "workspace-layout-state" {
			t.Errorf("domain = %q", e.Domain)
		}
	}

	var removed struct {
		Removed int `json:"removed"`
	}
	runJSON(t, server, &removed, "state", "reset", "workspace-layout-state", "--scope", "todo")
	if removed.Removed != 1 {
		t.Errorf("removed = %d, want 1", removed.Removed)
	}

	entries = nil
	runJSON(t, server, &entries, "state", "list", "workspace-layout-state")
	if len(entries) != 1 || entries[0].Scope != "blog" {
		t.Errorf("entries after reset = %+v, want blog only", entries)
	}

	output, err = run(t, server, "state", "reset", "--all", "workspace-layout-state")
	if err == nil {
		t.Fatal("reset with both --all and a domain succeeded")
	}
	if !strings.Contains(output, "--all on its own") {
		t.Errorf("output = %q", output)
	}

	if _, err := run(t, server, "state", "list", "bogus"); err == nil {
		t.Error("state list with unknown domain succeeded")
	}
}

func TestStateDomains(t *testing.T) {
	var domains map[string]string
	stdout := new(bytes.Buffer)
	cmd := NewRootCmd("test")
	cmd.SetOut(stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"state", "list", "--domains", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("state list --domains: %v", err)
	}
	if err := json.Unmarshal(stdout.Bytes(), &domains); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := domains["seen-msg"]; !ok {
		t.Errorf("domains = %v, want seen-msg", domains)
	}
}

func TestUnreachableServerReportsHint(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	output, err := run(t, url, "channels")
	if err == nil {
		t.Fatal("channels against closed server succeeded")
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		t.Errorf("err = %T, want reportedError", err)
	}
	if !strings.Contains(output, "Hint:") {
		t.Errorf("output = %q, want hint", output)
	}
}
