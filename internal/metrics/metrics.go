// Package metrics holds the OpenTelemetry request meter. Instruments are
// created lazily against the global meter provider, which is a no-op until
// an exporter is installed.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/adamavenir/aioffice"

// TagAction is the request tag for user-triggered calls.
const TagAction = "action"

var (
	initOnce        sync.Once
	requestsCounter metric.Int64Counter
	requestDuration metric.Float64Histogram
	pollRunsCounter metric.Int64Counter
)

func initInstruments() {
	initOnce.Do(func() {
		m := otel.Meter(meterName)
		requestsCounter, _ = m.Int64Counter("aioffice_api_requests_total",
			metric.WithDescription("REST requests issued, by tag, method and status"))
		requestDuration, _ = m.Float64Histogram("aioffice_api_request_duration_seconds",
			metric.WithDescription("REST request latency in seconds"))
		pollRunsCounter, _ = m.Int64Counter("aioffice_poll_runs_total",
			metric.WithDescription("Poll task runs, by task and outcome"))
	})
}

type tagKey struct{}

// WithTag attributes requests made with ctx to tag (usually a poller name).
func WithTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tagKey{}, tag)
}

// TagFrom returns the request tag carried by ctx, defaulting to TagAction.
func TagFrom(ctx context.Context) string {
	if tag, ok := ctx.Value(tagKey{}).(string); ok && tag != "" {
		return tag
	}
	return TagAction
}

// RecordRequest records one REST request. status is 0 when the transport failed.
func RecordRequest(ctx context.Context, method string, status int, d time.Duration) {
	initInstruments()
	tag := TagFrom(ctx)
	if requestsCounter != nil {
		requestsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tag", tag),
			attribute.String("method", method),
			attribute.Int("status", status),
		))
	}
	if requestDuration != nil {
		requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("tag", tag),
			attribute.String("method", method),
		))
	}
}

// RecordPollRun records the outcome of one poll run ("ok", "error", "cancelled").
func RecordPollRun(ctx context.Context, task, outcome string) {
	initInstruments()
	if pollRunsCounter == nil {
		return
	}
	pollRunsCounter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("outcome", outcome),
	))
}
