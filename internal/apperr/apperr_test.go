package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"network", Network("GET /api/channels", errors.New("refused")), KindNetwork},
		{"network cancelled", Network("GET /api/channels", context.Canceled), KindCancelled},
		{"server", Server("POST /api/spec/approve", 409, "not draft"), KindServer},
		{"wrapped", fmt.Errorf("load: %w", Validation("approve", "bad")), KindValidation},
		{"raw context", context.Canceled, KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Server("op", 500, "database locked"), "database locked"},
		{Server("op", 500, ""), msgServer},
		{Network("op", errors.New("dial tcp")), msgNetwork},
		{errors.New("boom"), msgGeneric},
		{State("approve", "completeness is 55%; fill required sections first"), "completeness is 55%; fill required sections first"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("disk full")
	err := Storage("write", base)
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(storage, base) = false")
	}
}
