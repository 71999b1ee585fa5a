// Package logger - Global zerolog setup.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a configured level name onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO", "":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, errors.Errorf("incorrect log level %s", level)
	}
}

// InitLogger sets the global level and routes the global logger to a console writer on
// stdout, tagging every event with the application name.
//
// Arguments:
//   - level: One of trace, debug, info, warn, error, fatal, panic or disabled.
//   - appName: The application name.
//
// Returns:
//   - error: An error if the level is unknown.
func InitLogger(level, appName string) error {
	return InitLoggerWithWriter(level, appName, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano})
}

// InitLoggerWithWriter is InitLogger with a custom destination.
func InitLoggerWithWriter(level, appName string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(w).With().Timestamp().Str("app", appName).Logger()
	log.Debug().Str("level", lvl.String()).Msg("logger initialized")
	return nil
}
