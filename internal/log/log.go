// Package log provides the process wide zerolog logger.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetOutput(os.Stdout)
}

// Logger returns the zerolog Logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// SetOutput redirects the global logger.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

// GetLevel returns the minimum global log level.
func GetLevel() zerolog.Level {
	return zerolog.GlobalLevel()
}

// SetLevel sets the minimum global log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetLevelString parses level (e.g. "debug", "warn") and applies it. An empty
// string selects info.
func SetLevelString(level string) error {
	if strings.TrimSpace(level) == "" {
		SetLevel(zerolog.InfoLevel)
		return nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	SetLevel(l)
	return nil
}

// Debug starts a new message with debug level.
func Debug() *zerolog.Event {
	return Logger().Debug()
}

// Info starts a new message with info level.
func Info() *zerolog.Event {
	return Logger().Info()
}

// Warn starts a new message with warn level.
func Warn() *zerolog.Event {
	return Logger().Warn()
}

// Error starts a new message with error level.
func Error() *zerolog.Event {
	return Logger().Error()
}
