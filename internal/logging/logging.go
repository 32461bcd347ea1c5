// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
}

var isTerminalFn = term.IsTerminal

// Setup initializes the global logger. Format "auto" picks console output
// when stderr is a terminal, JSON otherwise.
func Setup(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "auto"
	}
	useConsole := format == "console"
	if format == "auto" {
		useConsole = isTerminalFn(int(os.Stderr.Fd()))
	}
	if useConsole {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.Component != "" {
		logger = logger.Str("component", cfg.Component)
	}
	log.Logger = logger.Logger()

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
}

// ParseLevel maps a level string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
