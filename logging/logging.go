package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Packages log through it directly.
var Logger zerolog.Logger

func init() {
	Init("info", true)
}

// Init configures the global logger. With pretty set, entries are rendered
// for a terminal; otherwise one JSON object per line is written.
func Init(level string, pretty bool) {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	Logger = New(out, level)
}

// New builds a logger writing to out at the given level name.
func New(out io.Writer, level string) zerolog.Logger {
	return zerolog.New(out).
		With().Timestamp().Logger().
		Level(ParseLevel(level))
}

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

// Mask hides all but the last four characters of a contact handle or key.
func Mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
