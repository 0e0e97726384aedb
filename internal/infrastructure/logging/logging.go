package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Service is attached to every record when set.
	Service string
}

// Init installs the default slog logger. Records go to stdout and, when a
// file is configured, to a size-rotated log file. The returned writer is nil
// without a file.
func Init(cfg Config) (*RotatingWriter, error) {
	logger, rotating, err := New(os.Stdout, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(logger.Handler(), ParseLevel(cfg.Level)).Writer())
	return rotating, nil
}

// New builds a logger writing to out and the optional rotating file.
func New(out io.Writer, cfg Config) (*slog.Logger, *RotatingWriter, error) {
	writers := []io.Writer{out}

	var rotating *RotatingWriter
	if strings.TrimSpace(cfg.File) != "" {
		writer, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		rotating = writer
		writers = append(writers, writer)
	}

	options := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	target := io.MultiWriter(writers...)

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		handler = slog.NewTextHandler(target, options)
	case "json":
		handler = slog.NewJSONHandler(target, options)
	default:
		if rotating != nil {
			_ = rotating.Close()
		}
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger, rotating, nil
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
