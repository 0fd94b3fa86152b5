package metrics

import (
	"context"
	"testing"
	"time"
)

func TestTagFromDefaultsToAction(t *testing.T) {
	if got := TagFrom(context.Background()); got != TagAction {
		t.Errorf("TagFrom() = %q, want %q", got, TagAction)
	}
	ctx := WithTag(context.Background(), "activity")
	if got := TagFrom(ctx); got != "activity" {
		t.Errorf("TagFrom() = %q, want activity", got)
	}
}

func TestRecordWithoutProviderDoesNotPanic(t *testing.T) {
	ctx := WithTag(context.Background(), "channels")
	RecordRequest(ctx, "GET", 200, 15*time.Millisecond)
	RecordRequest(ctx, "GET", 0, time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	RecordPollRun(cancelled, "channels", "cancelled")
}
