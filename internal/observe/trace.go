package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the dmbot tracer.
const tracerName = "github.com/MrWong99/dmbot"

// Tracer returns the package-level [trace.Tracer] for dmbot. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type guildKey struct{}

// WithGuild returns a copy of ctx that carries the Discord guild ID. Loggers
// obtained via [Logger] include it as the guild_id attribute.
func WithGuild(ctx context.Context, guildID string) context.Context {
	if guildID == "" {
		return ctx
	}
	return context.WithValue(ctx, guildKey{}, guildID)
}

// GuildID returns the guild ID stored by [WithGuild], or "".
func GuildID(ctx context.Context) string {
	id, _ := ctx.Value(guildKey{}).(string)
	return id
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx, and guild_id when one was attached with
// [WithGuild]. Without either, the default slog logger is returned as is.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if g := GuildID(ctx); g != "" {
		l = l.With(slog.String("guild_id", g))
	}
	return l
}
