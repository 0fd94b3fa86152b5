package kv

import (
	"reflect"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		domain Domain
		scope  string
		sub    []string
		want   string
	}{
		{DomainSeenMsg, GlobalScope, []string{"c1"}, "ai-office:seen-msg:global:c1"},
		{DomainLayoutState, "proj", []string{"main", "split"}, "ai-office:workspace-layout-state:proj:main:split"},
		{DomainUIDensity, "", nil, "ai-office:ui-density:global"},
		{DomainSpecDraft, "c1", []string{""}, "ai-office:spec-draft:c1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Key(tt.domain, tt.scope, tt.sub...); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	domain, scope, sub, ok := ParseKey("ai-office:workspace-layout-state:proj:main:split")
	if !ok {
		t.Fatalf("ParseKey() ok = false")
	}
	if domain != DomainLayoutState || scope != "proj" || !reflect.DeepEqual(sub, []string{"main", "split"}) {
		t.Errorf("ParseKey() = %q %q %v", domain, scope, sub)
	}

	for _, bad := range []string{"", "other:seen-msg:global", "ai-office:seen-msg", "ai-office::x"} {
		if _, _, _, ok := ParseKey(bad); ok {
			t.Errorf("ParseKey(%q) ok = true, want false", bad)
		}
	}
}

func TestRegistryCoversDomains(t *testing.T) {
	if len(Domains()) != 15 {
		t.Errorf("len(Domains()) = %d, want 15", len(Domains()))
	}
	if !Known(DomainProviderDiag) {
		t.Errorf("Known(provider-diagnostics) = false")
	}
	if Known("bogus") {
		t.Errorf("Known(bogus) = true")
	}
}
