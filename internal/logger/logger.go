package logger

import (
	"os"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Messages writes esbuild diagnostics to the logger at the given level.
func Messages(logger zerolog.Logger, level zerolog.Level, msgs []api.Message) {
	for _, msg := range msgs {
		ev := logger.WithLevel(level).Str("plugin", msg.PluginName)
		if msg.ID != "" {
			ev = ev.Str("id", msg.ID)
		}
		if loc := msg.Location; loc != nil {
			ev = ev.Str("file", loc.File).Int("line", loc.Line).Int("column", loc.Column)
		}
		for _, note := range msg.Notes {
			ev = ev.Str("note", note.Text)
		}
		ev.Msg(msg.Text)
	}
}
