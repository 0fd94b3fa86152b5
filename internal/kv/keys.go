package kv

import (
	"sort"
	"strings"
)

// Namespace prefixes every persisted key.
const Namespace = "ai-office"

// GlobalScope is used when a key has no project/channel scope.
const GlobalScope = "global"

// Domain names one family of persisted values.
type Domain string

const (
	DomainLayoutMode         Domain = "workspace-layout-mode"
	DomainLayoutState        Domain = "workspace-layout-state"
	DomainSpecDraft          Domain = "spec-draft"
	DomainSpecSplitRatio     Domain = "spec-split-ratio"
	DomainSpecHistoryCache   Domain = "spec-history-cache"
	DomainWizardDraft        Domain = "create-project-wizard-draft"
	DomainDiscussParticipant Domain = "draft-discuss-participants"
	DomainDiscussRatio       Domain = "draft-discuss-ratio"
	DomainBeginnerEnabled    Domain = "beginner-mode-enabled"
	DomainBeginnerProgress   Domain = "beginner-progress"
	DomainSettingsCategory   Domain = "settings-category"
	DomainProviderDiag       Domain = "provider-diagnostics"
	DomainSeenMsg            Domain = "seen-msg"
	DomainUIDensity          Domain = "ui-density"
	DomainUIFontSize         Domain = "ui-font-size"
)

var registry = map[Domain]string{
	DomainLayoutMode:         "active workspace mode per project/branch",
	DomainLayoutState:        "pane ratios and collapsed flags per project/branch/mode",
	DomainSpecDraft:          "unsaved spec editor contents per channel",
	DomainSpecSplitRatio:     "spec editor/preview split",
	DomainSpecHistoryCache:   "last fetched spec history per project",
	DomainWizardDraft:        "project creation wizard state",
	DomainDiscussParticipant: "agents taking part in a draft brainstorm",
	DomainDiscussRatio:       "draft brainstorm pane split",
	DomainBeginnerEnabled:    "beginner guidance toggle",
	DomainBeginnerProgress:   "views opened per project",
	DomainSettingsCategory:   "focused settings category",
	DomainProviderDiag:       "last provider test outcomes",
	DomainSeenMsg:            "highest seen message id per channel",
	DomainUIDensity:          "compact/comfortable density",
	DomainUIFontSize:         "font size preference",
}

// Domains returns every registered domain in sorted order.
func Domains() []Domain {
	out := make([]Domain, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether d is a registered domain.
func Known(d Domain) bool {
	_, ok := registry[d]
	return ok
}

// Describe returns the registry description for d.
func Describe(d Domain) string {
	return registry[d]
}

// Key builds "ai-office:<domain>:<scope>[:<sub-scope>...]". An empty scope
// becomes GlobalScope; empty sub-scopes are dropped.
func Key(domain Domain, scope string, sub ...string) string {
	if scope == "" {
		scope = GlobalScope
	}
	parts := []string{Namespace, string(domain), scope}
	for _, s := range sub {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Prefix returns the scan prefix for all keys of a domain, optionally
// narrowed to a scope.
func Prefix(domain Domain, scope ...string) string {
	parts := append([]string{Namespace, string(domain)}, scope...)
	return strings.Join(parts, ":") + ":"
}

// ParseKey splits a key built by Key. Sub-scopes keep their order.
func ParseKey(key string) (domain Domain, scope string, sub []string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 || parts[0] != Namespace || parts[1] == "" || parts[2] == "" {
		return "", "", nil, false
	}
	return Domain(parts[1]), parts[2], parts[3:], true
}
