package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

func openStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var slugRe = regexp.MustCompile(`^[a-z0-9-]*$`)

func TestNormalizeProjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Cool App!", "my-cool-app"},
		{"  --Pong   Clone--  ", "pong-clone"},
		{"Ünïcode and_underscores", "n-code-and-underscores"},
		{"", ""},
		{"!!!", ""},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 17), "-")[:50]},
	}
	for _, tt := range tests {
		got := NormalizeProjectName(tt.in)
		if got != tt.want {
			t.Errorf("NormalizeProjectName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len(got) > MaxProjectNameLen || !slugRe.MatchString(got) {
			t.Errorf("NormalizeProjectName(%q) = %q is not a slug", tt.in, got)
		}
		if again := NormalizeProjectName(got); again != got {
			t.Errorf("not idempotent: %q -> %q", got, again)
		}
	}
}

func TestDeriveProjectName(t *testing.T) {
	if got := DeriveProjectName("\n\n  Build a Todo app\nwith tags"); got != "build-a-todo-app" {
		t.Errorf("DeriveProjectName() = %q", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		files []ImportEntry
		kind  ImportKind
		item  string
		count int
	}{
		{"single zip", []ImportEntry{{Path: "site.ZIP", Size: 2048}}, ImportZip, "site.ZIP", 1},
		{"folder", []ImportEntry{{Path: "app/main.go", Size: 10}, {Path: "app/go.mod", Size: 5}, {Path: "app/.git/HEAD", Size: 1}}, ImportFolder, "app", 2},
		{"loose files", []ImportEntry{{Path: "a.py"}, {Path: "b.py"}}, ImportFiles, "2 files", 2},
		{"mixed roots", []ImportEntry{{Path: "a/x.js"}, {Path: "b/y.js"}}, ImportFiles, "2 files", 2},
		{"single file", []ImportEntry{{Path: "./notes.md", Size: 3}}, ImportFiles, "notes.md", 1},
		{"ignored noise", []ImportEntry{{Path: "proj/node_modules/x/index.js"}, {Path: "proj/src/a.ts"}, {Path: "proj/.DS_Store"}}, ImportFolder, "proj", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := Classify(tt.files)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if item.Kind != tt.kind || item.Name != tt.item || item.Count != tt.count {
				t.Errorf("Classify() = %s %q %d, want %s %q %d", item.Kind, item.Name, item.Count, tt.kind, tt.item, tt.count)
			}
			if item.ID == "" || item.Summary == "" {
				t.Errorf("Classify() missing id or summary: %+v", item)
			}
		})
	}

	if _, err := Classify([]ImportEntry{{Path: ".git/config"}}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Classify(only ignored) = %v", err)
	}
}

func TestClassifySummaryAndStack(t *testing.T) {
	item, err := Classify([]ImportEntry{
		{Path: "svc/main.go", Size: 1000},
		{Path: "svc/util.go", Size: 500},
		{Path: "svc/web/app.js", Size: 300},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if item.Summary != "3 files · 1.8 kB" {
		t.Errorf("Summary = %q", item.Summary)
	}
	if !strings.HasPrefix(item.StackHint, "Go") {
		t.Errorf("StackHint = %q, want Go first", item.StackHint)
	}
}

func TestScanDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	for _, p := range []string{"main.go", "node_modules/dep/index.js", ".git/HEAD", "docs/readme.md"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ScanDir() = %+v, want 2 entries", entries)
	}
	item, err := Classify(entries)
	if err != nil || item.Kind != ImportFolder || item.Name != "demo" {
		t.Errorf("Classify(scan) = %+v, %v", item, err)
	}
}

func TestStepTransitions(t *testing.T) {
	w := Open(openStore(t))
	defer w.Close()

	if err := w.Next(); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Next() without prompt = %v", err)
	}
	if err := w.SetPrompt("  "); err != nil {
		t.Fatal(err)
	}
	if err := w.Next(); err == nil {
		t.Errorf("Next() with blank prompt succeeded")
	}
	_ = w.SetPrompt("A pomodoro timer")
	if err := w.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() = %v", err)
	}
	if got := w.Snapshot().Step; got != StepCreate {
		t.Errorf("Step = %v, want create", got)
	}
	if err := w.Next(); !apperr.Is(err, apperr.KindState) {
		t.Errorf("Next() past last step = %v", err)
	}
	_ = w.Back()
	if got := w.Snapshot().Step; got != StepReview {
		t.Errorf("Step after Back = %v", got)
	}
}

func toCreate(t *testing.T, w *Wizard, prompt string) {
	t.Helper()
	if err := w.SetPrompt(prompt); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := w.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
}

func TestSubmitPromptCaptureGuard(t *testing.T) {
	w := Open(openStore(t))
	defer w.Close()
	toCreate(t, w, "hell")

	calls := 0
	submit := func(ctx context.Context, h Handoff) error {
		calls++
		return nil
	}
	err := w.Submit(context.Background(), "hello", submit)
	if got := apperr.UserMessage(err); got != PromptNotCaptured {
		t.Errorf("Submit() = %q, want %q", got, PromptNotCaptured)
	}
	if calls != 0 {
		t.Errorf("submit handler called %d times", calls)
	}
}

func TestSubmitHandsOffSeed(t *testing.T) {
	store := openStore(t)
	w := Open(store)
	defer w.Close()
	toCreate(t, w, "Snake Game\nwith levels")
	_ = w.SetDestination(OpenSpec)
	_ = w.SetTemplate("arcade")

	var got Handoff
	err := w.Submit(context.Background(), "Snake Game\nwith levels", func(ctx context.Context, h Handoff) error {
		got = h
		return nil
	})
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if got.OpenTab != OpenSpec || got.Seed.ProjectName != "snake-game" || got.Seed.TemplateID != "arcade" {
		t.Errorf("handoff = %+v", got)
	}
	if snap := w.Snapshot(); snap.Step != StepDescribe || snap.Prompt != "" {
		t.Errorf("draft not reset: %+v", snap)
	}
	if _, ok := store.Raw(draftKey()); ok {
		t.Errorf("persisted draft kept after submit")
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	w := Open(openStore(t))
	defer w.Close()
	toCreate(t, w, "x")
	boom := errors.New("boom")
	if err := w.Submit(context.Background(), "x", func(context.Context, Handoff) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Submit() = %v", err)
	}
	if w.Snapshot().Prompt != "x" {
		t.Errorf("draft lost after failed submit")
	}
}

func TestDiscussFirst(t *testing.T) {
	w := Open(openStore(t))
	defer w.Close()
	noop := func(context.Context, Seed) error { return nil }
	if err := w.DiscussFirst(context.Background(), noop); !apperr.Is(err, apperr.KindState) {
		t.Errorf("DiscussFirst() on step 1 = %v", err)
	}
	toCreate(t, w, "chess app")
	_ = w.SetPhase(PhaseSpec)
	var seed Seed
	if err := w.DiscussFirst(context.Background(), func(_ context.Context, s Seed) error { seed = s; return nil }); err != nil {
		t.Fatalf("DiscussFirst() = %v", err)
	}
	if seed.Phase != PhaseDiscuss || seed.Prompt != "chess app" {
		t.Errorf("seed = %+v", seed)
	}
}

func TestAutosaveAndRestore(t *testing.T) {
	store := openStore(t)
	w := Open(store, WithAutosaveDelay(10*time.Millisecond))
	_ = w.SetPrompt("restore me")
	_ = w.Next()
	if _, err := w.AddImport([]ImportEntry{{Path: "a.go", Size: 1}}); err != nil {
		t.Fatalf("AddImport: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var d Draft
		if store.Decode(draftKey(), &d) && len(d.Imports) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Close()

	again := Open(store)
	defer again.Close()
	snap := again.Snapshot()
	if snap.Prompt != "restore me" || snap.Step != StepReview || len(snap.Imports) != 1 {
		t.Errorf("restored draft = %+v", snap)
	}
}

func TestCorruptDraftStartsFresh(t *testing.T) {
	store := openStore(t)
	store.Write(draftKey(), "not a draft")
	w := Open(store)
	defer w.Close()
	if snap := w.Snapshot(); snap.ID == "" || snap.Step != StepDescribe {
		t.Errorf("fresh draft = %+v", snap)
	}
}

func TestDiscussPreferences(t *testing.T) {
	store := openStore(t)
	if got := SetParticipants(store, []string{"pm", "", "dev", "pm"}); strings.Join(got, ",") != "pm,dev" {
		t.Errorf("SetParticipants() = %v", got)
	}
	if got := Participants(store); strings.Join(got, ",") != "pm,dev" {
		t.Errorf("Participants() = %v", got)
	}
	if got := SetDiscussRatio(store, 0.05); got != MinDiscussRatio {
		t.Errorf("SetDiscussRatio() = %v", got)
	}
	if got := DiscussRatio(store); got != MinDiscussRatio {
		t.Errorf("DiscussRatio() = %v", got)
	}
}

type checker map[types.Backend]error

func (p checker) ProviderStatus(ctx context.Context, b types.Backend) (bool, error) {
	err, ok := p[b]
	if !ok {
		return false, nil
	}
	return err == nil, err
}

func TestCheckProviders(t *testing.T) {
	health := CheckProviders(context.Background(), checker{
		types.BackendOpenAI: nil,
		types.BackendClaude: errors.New("timeout"),
	})
	if health[types.BackendOpenAI].State != HealthOK {
		t.Errorf("openai = %+v", health[types.BackendOpenAI])
	}
	if health[types.BackendClaude].State != HealthError || health[types.BackendClaude].Error != "timeout" {
		t.Errorf("claude = %+v", health[types.BackendClaude])
	}
	if health[types.BackendOllama].State != HealthUnavailable {
		t.Errorf("ollama = %+v", health[types.BackendOllama])
	}
	if !Healthy(health) {
		t.Errorf("Healthy() = false")
	}
}
