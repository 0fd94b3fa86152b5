package specdoc

import (
	"regexp"
	"strings"
)

// Title is the document heading emitted by Build.
const Title = "Build Spec"

// EmptyBody marks a required section that has not been written yet.
const EmptyBody = "- [ ] TBD"

var headingRe = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*\s*$`)

// Sections maps section keys to their markdown bodies.
type Sections map[string]string

// NewSections returns a map holding every schema key with an empty body.
func NewSections() Sections {
	s := make(Sections, len(Schema))
	for _, sec := range Schema {
		s[sec.Key] = ""
	}
	return s
}

// Clone returns a copy of s.
func (s Sections) Clone() Sections {
	out := make(Sections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Body returns the trimmed body of key.
func (s Sections) Body(key string) string {
	return normalizeBody(s[key])
}

// Filled reports whether key has content.
func (s Sections) Filled(key string) bool {
	return s.Body(key) != ""
}

func normalizeBody(body string) string {
	body = strings.TrimSpace(body)
	if body == EmptyBody {
		return ""
	}
	return body
}

// Parse splits markdown into sections. Level 1 to 3 headings that match a
// known alias switch the active section; other lines, including unknown
// headings, are appended to it. Lines inside fenced code blocks never
// switch sections. When no known heading is present the whole body becomes
// the problem statement.
func Parse(md string) Sections {
	out := NewSections()
	md = strings.ReplaceAll(md, "\r\n", "\n")

	bodies := make(map[string][]string)
	active := ""
	found := false
	fenced := false
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
		}
		if !fenced {
			if m := headingRe.FindStringSubmatch(trimmed); m != nil {
				if key, ok := SectionFor(m[2]); ok {
					active = key
					found = true
					continue
				}
			}
		}
		if active != "" {
			bodies[active] = append(bodies[active], line)
		}
	}

	if !found {
		out[ProblemGoal] = normalizeBody(stripTitle(md))
		return out
	}
	for key, lines := range bodies {
		out[key] = normalizeBody(strings.Join(lines, "\n"))
	}
	return out
}

// stripTitle drops a leading "# Build Spec" heading.
func stripTitle(md string) string {
	trimmed := strings.TrimLeft(md, " \t\n")
	first, rest, _ := strings.Cut(trimmed, "\n")
	if m := headingRe.FindStringSubmatch(strings.TrimSpace(first)); m != nil && NormalizeHeading(m[2]) == NormalizeHeading(Title) {
		return rest
	}
	return md
}

// Build renders sections as markdown in schema order. Empty required
// sections are written as EmptyBody.
func Build(s Sections) string {
	var b strings.Builder
	b.WriteString("# " + Title + "\n")
	for _, sec := range Schema {
		body := s.Body(sec.Key)
		if body == "" {
			if !sec.Required {
				continue
			}
			body = EmptyBody
		}
		b.WriteString("\n## " + sec.Heading + "\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}

// Completeness summarises how many required sections are filled.
type Completeness struct {
	Completed int      `json:"completed"`
	Required  int      `json:"required"`
	Percent   int      `json:"percent"`
	Missing   []string `json:"missing,omitempty"`
}

// Ready reports whether the spec meets the approval threshold.
func (c Completeness) Ready() bool {
	return c.Percent >= ApproveThreshold
}

// Compute returns the completeness of s. Percent is floored so that 100
// is only reached when every required section is filled.
func Compute(s Sections) Completeness {
	var c Completeness
	for _, sec := range Schema {
		if !sec.Required {
			continue
		}
		c.Required++
		if s.Filled(sec.Key) {
			c.Completed++
		} else {
			c.Missing = append(c.Missing, sec.Key)
		}
	}
	if c.Required > 0 {
		c.Percent = c.Completed * 100 / c.Required
	}
	return c
}

// DiffSections returns the keys, in schema order, whose bodies differ.
func DiffSections(a, b Sections) []string {
	var out []string
	for _, sec := range Schema {
		if a.Body(sec.Key) != b.Body(sec.Key) {
			out = append(out, sec.Key)
		}
	}
	return out
}

// LineDelta counts distinct non-blank lines added to and removed from
// before to produce after.
func LineDelta(before, after string) (added, removed int) {
	prev := lineSet(before)
	next := lineSet(after)
	for line := range next {
		if !prev[line] {
			added++
		}
	}
	for line := range prev {
		if !next[line] {
			removed++
		}
	}
	return added, removed
}

func lineSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = true
		}
	}
	return set
}
