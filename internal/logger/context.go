package logger

import "context"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are structured values attached to every log record emitted with
// the carrying context.
type Fields struct {
	Component string // e.g. "stream", "poll", "unread"
	Channel   string
	Project   string
	Task      string // poller name
}

// WithFields enriches ctx. Non-empty values in f override existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	merged := FieldsFrom(ctx)
	if f.Component != "" {
		merged.Component = f.Component
	}
	if f.Channel != "" {
		merged.Channel = f.Channel
	}
	if f.Project != "" {
		merged.Project = f.Project
	}
	if f.Task != "" {
		merged.Task = f.Task
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// FieldsFrom returns the fields stored in ctx.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// Truncate shortens s to maxLen bytes, appending "..." if cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
