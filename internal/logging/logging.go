package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gfxrelay/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger from cfg. Output goes to stdout unless
// LogFile is set, in which case it is written through a rotating file.
func New(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    max(1, cfg.LogMaxSizeMB),
			MaxAge:     max(1, cfg.LogMaxAgeDays),
			MaxBackups: 3,
			LocalTime:  true,
			Compress:   true,
		}
		out, closer = rotating, rotating
	}

	return NewWithWriter(out, cfg.LogLevel, cfg.LogFormat), closer, nil
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
