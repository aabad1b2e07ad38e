// Package logging builds the structured logger the enumerator and the
// CLI write to.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

var ErrUnknownLevel = errors.New("unknown log level")

// Options configures New.
type Options struct {
	Level  string
	Output io.Writer
	Prefix string
	// NoColor forces plain ASCII output, for files and tests.
	NoColor         bool
	ReportTimestamp bool
	TimeFormat      string
}

func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Output:     os.Stderr,
		TimeFormat: "15:04:05",
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%q: %w", s, ErrUnknownLevel)
	}
}

func New(opts Options) (*log.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      opts.TimeFormat,
	})

	if opts.NoColor {
		l.SetColorProfile(termenv.Ascii)
	}

	return l, nil
}

// Nop discards everything.
func Nop() *log.Logger {
	return log.New(io.Discard)
}
