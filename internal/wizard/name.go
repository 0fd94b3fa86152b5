package wizard

import "strings"

// MaxProjectNameLen bounds project names.
const MaxProjectNameLen = 50

// NormalizeProjectName turns arbitrary text into a project slug of
// lowercase letters, digits and single dashes, at most MaxProjectNameLen
// long. Applying it twice yields the same result.
func NormalizeProjectName(text string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	name := b.String()
	if len(name) > MaxProjectNameLen {
		name = strings.TrimRight(name[:MaxProjectNameLen], "-")
	}
	return name
}

// DeriveProjectName slugs the first non-blank line of prompt.
func DeriveProjectName(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if name := NormalizeProjectName(line); name != "" {
			return name
		}
	}
	return ""
}
