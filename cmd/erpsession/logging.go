package main

import (
	"io"
	"time"

	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogger configures the global logger: console output in DEV, JSON
// everywhere else.
func setupLogger(cfg config.Config, w io.Writer) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if cfg.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("app", cfg.GetAppName()).Logger()
}

func componentLogger(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
