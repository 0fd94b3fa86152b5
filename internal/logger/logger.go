// Package logger configures slog for the client and enriches records with
// workspace context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/adamavenir/aioffice/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
)

const serviceName = "aioffice"

// Setup installs the default slog logger. Output goes to w; the terminal
// workspace passes a log file so records never interleave with the UI.
func Setup(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch {
	case cfg.OTel:
		handler = otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(global.GetLoggerProvider()))
	case cfg.Format == "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	log := slog.New(NewFieldsHandler(handler))
	slog.SetDefault(log)
	return log
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// FieldsHandler adds context Fields to every record.
type FieldsHandler struct {
	slog.Handler
}

// NewFieldsHandler wraps h.
func NewFieldsHandler(h slog.Handler) *FieldsHandler {
	return &FieldsHandler{Handler: h}
}

func (h *FieldsHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := FieldsFrom(ctx)
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	if fields.Channel != "" {
		r.AddAttrs(slog.String("channel", fields.Channel))
	}
	if fields.Project != "" {
		r.AddAttrs(slog.String("project", fields.Project))
	}
	if fields.Task != "" {
		r.AddAttrs(slog.String("task", fields.Task))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *FieldsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FieldsHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *FieldsHandler) WithGroup(name string) slog.Handler {
	return &FieldsHandler{Handler: h.Handler.WithGroup(name)}
}
