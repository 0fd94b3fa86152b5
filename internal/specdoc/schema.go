// Package specdoc models a project build spec as an ordered set of
// sections, converts it to and from markdown, and drives the draft and
// approval workflow.
package specdoc

import (
	"strings"
	"unicode"
)

// Section keys, in document order.
const (
	ProblemGoal        = "problem_goal"
	TargetPlatform     = "target_platform"
	CoreLoop           = "core_loop"
	Features           = "features"
	NonGoals           = "non_goals"
	UXNotes            = "ux_notes"
	DataStateModel     = "data_state_model"
	AcceptanceCriteria = "acceptance_criteria"
	RisksUnknowns      = "risks_unknowns"
)

// Section describes one spec section.
type Section struct {
	Key         string
	Heading     string
	Hint        string
	Placeholder string
	Required    bool
	Aliases     []string
}

// Schema lists the sections in document order.
var Schema = []Section{
	{
		Key: ProblemGoal, Heading: "Problem / Goal", Required: true,
		Hint:        "What problem does this solve and for whom?",
		Placeholder: "- Users need ...\n- Success looks like ...",
		Aliases:     []string{"problem and goal", "problem and goals", "problem statement"},
	},
	{
		Key: TargetPlatform, Heading: "Target Platform", Required: true,
		Hint:        "Where does it run? Web, desktop, mobile, CLI.",
		Placeholder: "- Web (desktop browsers)",
		Aliases:     []string{"target platforms"},
	},
	{
		Key: CoreLoop, Heading: "Core Loop", Required: true,
		Hint:        "The main thing a user does, step by step.",
		Placeholder: "1. User opens ...\n2. ...",
		Aliases:     []string{"core user loop"},
	},
	{
		Key: Features, Heading: "Features", Required: true,
		Hint:        "Must-have and nice-to-have features.",
		Placeholder: "### Must\n- ...\n### Nice to have\n- ...",
		Aliases:     []string{"feature list"},
	},
	{
		Key: NonGoals, Heading: "Non-Goals", Required: true,
		Hint:        "What is explicitly out of scope.",
		Placeholder: "- No user accounts in v1",
		Aliases:     []string{"non goal"},
	},
	{
		Key: UXNotes, Heading: "UX Notes", Required: true,
		Hint:        "Look and feel, key screens, interactions.",
		Placeholder: "- Single page with ...",
		Aliases:     []string{"ux and ui notes", "ui ux notes"},
	},
	{
		Key: DataStateModel, Heading: "Data / State Model", Required: true,
		Hint:        "Entities, persisted state, where data lives.",
		Placeholder: "- Item { id, title, done }",
		Aliases:     []string{"data and state model", "data state model"},
	},
	{
		Key: AcceptanceCriteria, Heading: "Acceptance Criteria", Required: true,
		Hint:        "Checks that prove the build is done.",
		Placeholder: "- [ ] User can ...",
	},
	{
		Key: RisksUnknowns, Heading: "Risks / Unknowns", Required: true,
		Hint:        "Open questions and what might go wrong.",
		Placeholder: "- Unsure whether ...",
		Aliases:     []string{"risks and unknowns"},
	},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for _, s := range Schema {
		idx[NormalizeHeading(s.Key)] = s.Key
		idx[NormalizeHeading(strings.ReplaceAll(s.Key, "_", " "))] = s.Key
		idx[NormalizeHeading(s.Heading)] = s.Key
		for _, a := range s.Aliases {
			idx[NormalizeHeading(a)] = s.Key
		}
	}
	return idx
}

// NormalizeHeading lowercases text, spells out "&" and keeps only letters
// and digits.
func NormalizeHeading(text string) string {
	text = strings.ReplaceAll(strings.ToLower(text), "&", "and")
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SectionFor resolves heading text to a section key.
func SectionFor(heading string) (string, bool) {
	key, ok := aliasIndex[NormalizeHeading(heading)]
	return key, ok
}

// Lookup returns the schema entry for key.
func Lookup(key string) (Section, bool) {
	for _, s := range Schema {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// RequiredCount returns the number of required sections.
func RequiredCount() int {
	n := 0
	for _, s := range Schema {
		if s.Required {
			n++
		}
	}
	return n
}
