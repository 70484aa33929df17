package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Levels lists the accepted --log-level values, most verbose first.
var Levels = []string{"trace", "debug", "info", "warn", "error"}

// New returns a zerolog logger configured for stderr at info level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a logger at the parsed level. Unknown levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return NewWithWriter(consoleWriter(os.Stderr), level)
}

// NewWithWriter builds a logger writing to w at the parsed level.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	parsed, err := ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}

// LevelFor resolves the effective level name. --debug wins over a configured
// level; an empty level means info.
func LevelFor(debug bool, level string) string {
	if debug {
		return "debug"
	}
	if strings.TrimSpace(level) == "" {
		return "info"
	}
	return level
}

// ParseLevel maps a level name to zerolog. "warning" is accepted for warn.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q (want one of %s)", level, strings.Join(Levels, ", "))
	}
}

// CI logs are read by humans; keep them colorless and compact.
func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "15:04:05"}
}
