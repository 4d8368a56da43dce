// Package logging builds the process zerolog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configure New.
type Options struct {
	// Level is one of debug, info, warn, error or off. Empty means info.
	Level string
	// Format is json (default) or console.
	Format string
	// Writer defaults to stderr.
	Writer io.Writer
}

// ParseLevel maps a level name to zerolog.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a logger with a timestamp and the requested output.
func New(o Options) (zerolog.Logger, error) {
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	switch strings.ToLower(o.Format) {
	case "", "json":
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", o.Format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Into attaches l to ctx.
func Into(ctx context.Context, l zerolog.Logger) context.Context { return l.WithContext(ctx) }

// From returns the logger attached to ctx, or a disabled one.
func From(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }
