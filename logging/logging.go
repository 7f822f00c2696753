// Package logging builds the zerolog logger shared by every component.
// Components add their own Str("component", …) field.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel overrides the configured level.
const EnvLogLevel = "SCENERPC_LOG_LEVEL"

// Options configures New.
type Options struct {
	App    string
	Level  string    // trace, debug, info, warn, error or off
	Format string    // "console" or "json"
	Out    io.Writer // defaults to stderr
}

// New builds a logger and installs it as the zerolog global.
func New(opts Options) (zerolog.Logger, error) {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		return zerolog.Nop(), fmt.Errorf("logging: unknown level %q", opts.Level)
	}
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if env, ok := ParseLevel(raw); ok {
			level = env
		}
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger, nil
}

// ParseLevel maps a level name to a zerolog level. An empty name is info.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zerolog.InfoLevel, true
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
