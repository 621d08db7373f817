// Package logging builds the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format values accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options selects the handler. Empty Format picks text on a terminal and
// JSON otherwise.
type Options struct {
	Level  string
	Format string
}

// New returns a logger writing to stderr.
func New(opts Options) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, opts, isTerminal(os.Stderr)))
}

// NewHandler returns a colorized tint handler for text output and a JSON
// handler otherwise. Color is only used when tty is true.
func NewHandler(w io.Writer, opts Options, tty bool) slog.Handler {
	level := ParseLevel(opts.Level)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatJSON
		if tty {
			format = FormatText
		}
	}

	if format == FormatText {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !tty,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
