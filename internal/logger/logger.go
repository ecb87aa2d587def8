// Package logger builds the process logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options selects the log output
type Options struct {
	// Level is a zerolog level name; empty or invalid means info.
	Level string
	// Format is "console" (default), "text" (console without color) or "json".
	Format string
	// Out defaults to stderr.
	Out io.Writer
}

// New returns a timestamped logger. An invalid level is reported on the
// returned logger and replaced by info.
func New(opts Options) zerolog.Logger {
	var w io.Writer = opts.Out
	if w == nil {
		w = os.Stderr
	}

	format := strings.ToLower(opts.Format)
	if format != "json" {
		w = zerolog.ConsoleWriter{
			Out: w, TimeFormat: "15:04:05.000",
			NoColor: w != os.Stderr || format == "text",
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	log := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	if err != nil {
		log.Warn().Err(err).Str("level", opts.Level).Msg("[log] invalid level, using info")
	}
	return log
}
