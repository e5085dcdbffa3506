// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used as the "component" field of child loggers.
const (
	ComponentClient    = "api-client"
	ComponentSearch    = "search"
	ComponentHarvest   = "harvest"
	ComponentConvert   = "convert"
	ComponentRateLimit = "ratelimit"
	ComponentStore     = "store"
	ComponentPublish   = "publish"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (conditional requests, ETags, retries scheduled)
//   - Cache hits and misses
//   - Per-item idempotent skips
//
// Info: Normal operation events
//   - Pipeline run start/finish and the resulting statistic
//   - Search progress per page
//   - Successful conversions
//
// Warn: Conditions that reject one item but never abort a run
//   - Transport failures while fetching a feature list
//   - Feature parser failures
//   - Conversion load/build failures
//   - Rate limit back-off
//
// Error: Conditions requiring attention
//   - Mapping file cannot be loaded
//   - Output directory cannot be created
//   - Requests failing after all retries
//
// Context Fields:
//   - run_id: Pipeline run identifier
//   - scope_id: Output scope of a pipeline run
//   - item_id: Work item identifier
//   - reason: Classification reason (transport_failure, parse_failure, ...)
//   - document, workspace, element: Remote element address
//   - endpoint: API endpoint label
//   - error_class: Error classification (client, server, rate_limit, network)
//   - path: Output artifact path
