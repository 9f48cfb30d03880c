package zerolog

import (
	"os"

	"github.com/google/goterm/term"
	"github.com/raykavin/quantcore/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a console logger at the given level. When colored is false
// the level markers are emitted without ANSI escapes.
func New(level, dateTimeLayout string, colored bool) (logger.Logger, error) {
	logMode, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(logMode)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    !colored,
		TimeFormat: dateTimeLayout,
	}
	if colored {
		output.FormatLevel = formatLevel
	}

	l := log.Output(output).With().Timestamp().Logger()
	return &Adapter{&l}, nil
}

func formatLevel(i interface{}) string {
	levelStr, ok := i.(string)
	if !ok {
		return "[???]"
	}

	switch levelStr {
	case zerolog.LevelTraceValue:
		return term.Cyanf("[TRC]")
	case zerolog.LevelDebugValue:
		return term.Cyanf("[DBG]")
	case zerolog.LevelInfoValue:
		return term.Greenf("[INF]")
	case zerolog.LevelWarnValue:
		return term.Yellowf("[WAR]")
	case zerolog.LevelErrorValue:
		return term.Redf("[ERR]")
	case zerolog.LevelFatalValue:
		return term.Redf("[FTL]")
	default:
		return "[" + levelStr + "]"
	}
}
