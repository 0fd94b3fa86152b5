package specdoc

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/aioffice/internal/types"
)

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Problem / Goal", "problemgoal"},
		{"problem_goal", "problemgoal"},
		{"Data & State Model", "dataandstatemodel"},
		{"  UX Notes!! ", "uxnotes"},
		{"Non-Goals", "nongoals"},
	}
	for _, tt := range tests {
		if got := NormalizeHeading(tt.in); got != tt.want {
			t.Errorf("NormalizeHeading(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSectionForAliases(t *testing.T) {
	tests := []struct {
		heading string
		want    string
	}{
		{"Problem / Goal", ProblemGoal},
		{"problem_goal", ProblemGoal},
		{"Problem & Goal", ProblemGoal},
		{"target platform", TargetPlatform},
		{"DATA / STATE MODEL", DataStateModel},
		{"Risks & Unknowns", RisksUnknowns},
		{"acceptance_criteria", AcceptanceCriteria},
	}
	for _, tt := range tests {
		got, ok := SectionFor(tt.heading)
		if !ok || got != tt.want {
			t.Errorf("SectionFor(%q) = %q, %v; want %q", tt.heading, got, ok, tt.want)
		}
	}
	for _, generic := range []string{"Must", "Scope", "Data", "UI", "UX", "Goal", "Overview", "Target", "Acceptance", "Risks"} {
		if key, ok := SectionFor(generic); ok {
			t.Errorf("SectionFor(%q) = %q, want no match", generic, key)
		}
	}
}

func TestParseScenario(t *testing.T) {
	md := "# Build Spec\n\n## Problem / Goal\n- a\n\n## Features\n### Must\n- m\n"
	got := Parse(md)

	want := NewSections()
	want[ProblemGoal] = "- a"
	want[Features] = "### Must\n- m"
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %#v, want %#v", got, want)
	}

	built := Build(got)
	if !strings.HasPrefix(built, "# Build Spec\n") {
		t.Errorf("Build() missing title: %q", built)
	}
	if !strings.Contains(built, "## Problem / Goal\n- a\n") {
		t.Errorf("Build() lost problem body: %q", built)
	}
	if !strings.Contains(built, "## Features\n### Must\n- m\n") {
		t.Errorf("Build() lost features body: %q", built)
	}
	if n := strings.Count(built, EmptyBody); n != 7 {
		t.Errorf("Build() placeholders = %d, want 7", n)
	}
	if !strings.Contains(built, "## Target Platform\n"+EmptyBody+"\n") {
		t.Errorf("Build() missing placeholder for target platform: %q", built)
	}
}

func TestRoundTripFilled(t *testing.T) {
	s := NewSections()
	for i, sec := range Schema {
		s[sec.Key] = strings.Repeat("- item\n", i+1) + "Body of " + sec.Heading
	}
	s[Features] = "### Must\n- m\n\n```\n## Problem / Goal\n```"
	got := Parse(Build(s))
	for _, sec := range Schema {
		if got[sec.Key] != strings.TrimSpace(s[sec.Key]) {
			t.Errorf("round trip %s = %q, want %q", sec.Key, got[sec.Key], s[sec.Key])
		}
	}
}

func TestRoundTripKeepsSubheadings(t *testing.T) {
	s := NewSections()
	for _, sec := range Schema {
		s[sec.Key] = "- " + sec.Heading
	}
	s[Features] = "### Scope\n- login\n### Data\n- export csv"
	s[UXNotes] = "### UI\n- dark theme\n### Overview\n- one screen"
	s[RisksUnknowns] = "### Risks\n- latency\n### Goal\n- ship"
	got := Parse(Build(s))
	if !reflect.DeepEqual(got, s) {
		t.Errorf("Parse(Build(s)) = %#v, want %#v", got, s)
	}
}

func TestRoundTripPartial(t *testing.T) {
	s := Sections{CoreLoop: "1. open\n2. play"}
	got := Parse(Build(s))
	for _, sec := range Schema {
		want := ""
		if sec.Key == CoreLoop {
			want = "1. open\n2. play"
		}
		if got[sec.Key] != want {
			t.Errorf("section %s = %q, want %q", sec.Key, got[sec.Key], want)
		}
	}
}

func TestBuildOfParsePreservesBodies(t *testing.T) {
	md := "## core loop\n\n  play  \n\n## Non Goals\nnone\n## Unknown\nstays in non goals\n"
	out := Parse(Build(Parse(md)))
	if out[CoreLoop] != "play" {
		t.Errorf("core loop = %q", out[CoreLoop])
	}
	if out[NonGoals] != "none\n## Unknown\nstays in non goals" {
		t.Errorf("non goals = %q", out[NonGoals])
	}
}

func TestParseWithoutKnownHeadings(t *testing.T) {
	got := Parse("# Build Spec\n\nJust an idea for a todo app.\n")
	if got[ProblemGoal] != "Just an idea for a todo app." {
		t.Errorf("problem_goal = %q", got[ProblemGoal])
	}
	got = Parse("A pong clone\n## Random\nstuff")
	if got[ProblemGoal] != "A pong clone\n## Random\nstuff" {
		t.Errorf("problem_goal = %q", got[ProblemGoal])
	}
}

func TestCompute(t *testing.T) {
	s := NewSections()
	if c := Compute(s); c.Percent != 0 || c.Completed != 0 || len(c.Missing) != 9 {
		t.Errorf("Compute(empty) = %+v", c)
	}
	for i, sec := range Schema {
		if i < 5 {
			s[sec.Key] = "x"
		}
	}
	c := Compute(s)
	if c.Percent != 55 || c.Completed != 5 || c.Required != 9 {
		t.Errorf("Compute(5/9) = %+v, want 55%%", c)
	}
	s[Schema[5].Key] = "  "
	s[Schema[6].Key] = EmptyBody
	if got := Compute(s).Completed; got != 5 {
		t.Errorf("blank bodies counted: %d", got)
	}
	for _, sec := range Schema {
		s[sec.Key] = "x"
	}
	if c := Compute(s); c.Percent != 100 || len(c.Missing) != 0 {
		t.Errorf("Compute(full) = %+v", c)
	}
	s[RisksUnknowns] = ""
	if c := Compute(s); c.Percent == 100 {
		t.Errorf("Compute(8/9) = 100")
	}
}

func TestDiffSectionsAndLineDelta(t *testing.T) {
	a := Sections{ProblemGoal: "x", Features: "- a"}
	b := Sections{ProblemGoal: " x ", Features: "- b", NonGoals: "n"}
	if got := DiffSections(a, b); !reflect.DeepEqual(got, []string{Features, NonGoals}) {
		t.Errorf("DiffSections() = %v", got)
	}
	added, removed := LineDelta("one\ntwo\n\ntwo", "two\nthree\nfour")
	if added != 2 || removed != 1 {
		t.Errorf("LineDelta() = +%d -%d, want +2 -1", added, removed)
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := []types.SpecSnapshot{
		{ID: 1, Kind: KindSpec, Content: "## Features\n- a", CreatedAt: base},
		{ID: 2, Kind: KindIdeaBank, Content: "idea one", CreatedAt: base.Add(time.Minute)},
		{ID: 3, Kind: KindSpec, Content: "## Features\n- b\n## Core Loop\nplay", CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, Kind: KindIdeaBank, Content: "idea one\nidea two", CreatedAt: base.Add(3 * time.Minute)},
	}
	got := Summarize(snaps)
	if len(got) != 4 || got[0].ID != 4 {
		t.Fatalf("Summarize() order = %+v", got)
	}
	if got[0].Added != 1 || got[0].Removed != 0 {
		t.Errorf("idea bank delta = +%d -%d", got[0].Added, got[0].Removed)
	}
	if !reflect.DeepEqual(got[1].Changed, []string{CoreLoop, Features}) {
		t.Errorf("spec changed = %v", got[1].Changed)
	}
	if !got[2].Initial || !got[3].Initial {
		t.Errorf("oldest entries not marked initial: %+v", got[2:])
	}
}
