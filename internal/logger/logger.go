package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog level and output. Release mode writes JSON
// lines; anything else gets the human readable console writer.
func Init(appName, level, mode string) error {
	return initTo(os.Stdout, appName, level, mode)
}

func initTo(out io.Writer, appName, level, mode string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("incorrect log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if mode != "release" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "02-01-2006 15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("app", appName).Logger()
	log.Info().Str("level", lvl.String()).Msg("logger initialized")
	return nil
}
