package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance
var log zerolog.Logger

// ContextKey for storing logger in context
type ctxKey struct{}

// Init initializes the global logger
func Init(env string, logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout

	// Pretty console output for development
	if env == "development" || env == "dev" || env == "" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	zerolog.SetGlobalLevel(parseLevel(logLevel))

	log = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger
func Get() *zerolog.Logger {
	return &log
}

// WithContext returns the request-scoped logger, or the global one.
func WithContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &log
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithRequestID adds an HTTP request ID to the logger
func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("http_request_id", requestID).Logger()
}

// WithActor adds the authenticated actor to the logger
func WithActor(l zerolog.Logger, actor string) zerolog.Logger {
	return l.With().Str("actor", actor).Logger()
}

// --- Structured Logging Helpers ---

// Transition logs a committed state change of a service request or payment.
func Transition(ctx context.Context, entity, id, from, to string) {
	WithContext(ctx).Info().
		Str("entity", entity).
		Str("id", id).
		Str("from", from).
		Str("to", to).
		Msg("State Transition")
}

// LostRace logs a conditional write that matched no row.
func LostRace(ctx context.Context, entity, id string, attempt int) {
	WithContext(ctx).Warn().
		Str("entity", entity).
		Str("id", id).
		Int("attempt", attempt).
		Msg("Stale Write")
}

// ServiceStart logs service startup
func ServiceStart(name, version, port string) {
	log.Info().
		Str("service", name).
		Str("version", version).
		Str("port", port).
		Msg("Service Started")
}

// ServiceStop logs service shutdown
func ServiceStop(name string) {
	log.Info().
		Str("service", name).
		Msg("Service Stopped")
}
