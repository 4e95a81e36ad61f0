package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tradeworks/nightfade/internal/config"
)

// setupLogging swaps the boot logger for the configured one: a console
// stream on stderr plus a rotating JSON file under cfg.Dir. The file
// sink is what gets read the morning after an unattended night, so it
// keeps full structured detail regardless of console formatting.
func setupLogging(cfg config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}

	writers := []io.Writer{console}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "nightfade.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().
		Logger()
	return nil
}
