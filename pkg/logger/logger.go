package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the root logger built at startup.
type Config struct {
	Level  string // zerolog level name: trace, debug, info, warn, error
	Pretty bool   // human-readable console output for dev mode
}

// New builds the root zerolog logger and sets the global level. Repositories,
// services and handlers derive scoped loggers from it via
// log.With().Str(...). An unrecognized or empty level falls back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// SetGlobalLogger installs l as the zerolog package-level logger so code
// using log.Info() etc. shares the configured output and level.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
