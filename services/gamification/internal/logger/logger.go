package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console writer for local development
	TimeFormat string
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Pretty: false, TimeFormat: time.RFC3339}
}

// Init initializes the global logger.
func Init(cfg Config) {
	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFormat}
	}

	level := parseLevel(cfg.Level)
	zerolog.TimeFieldFormat = cfg.TimeFormat

	log = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// InitFromEnv initializes the logger from LOG_LEVEL / LOG_PRETTY.
func InitFromEnv() {
	cfg := DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if os.Getenv("LOG_PRETTY") == "true" {
		cfg.Pretty = true
	}
	Init(cfg)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger.
func Get() zerolog.Logger { return log }

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

// WithService returns a logger tagged with a service name.
func WithService(name string) zerolog.Logger {
	return log.With().Str("service", name).Logger()
}

// WithRequestID returns a logger tagged with a request id.
func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("request_id", requestID).Logger()
}

// HTTPRequest logs a completed HTTP request.
func HTTPRequest(method, path string, statusCode int, duration time.Duration) {
	log.Info().
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Msg("HTTP request")
}

// DBQuery logs a database query outcome.
func DBQuery(query string, duration time.Duration, err error) {
	event := log.Debug().Str("query", truncate(query, 200)).Dur("duration", duration)
	if err != nil {
		event.Err(err).Msg("DB query failed")
	} else {
		event.Msg("DB query")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
