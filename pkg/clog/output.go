package clog

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the optional rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Output returns w, or w teed into a rotating file when cfg.Path is set.
// The returned closer must be closed on shutdown.
func Output(w io.Writer, cfg FileConfig) (io.Writer, io.Closer) {
	if cfg.Path == "" {
		return w, io.NopCloser(nil)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(w, file), file
}

// NewHandler picks the colored text handler for local development and JSON
// everywhere else, wrapped so context attributes are attached.
func NewHandler(w io.Writer, local bool, level slog.Level) slog.Handler {
	var handler slog.Handler
	if local {
		handler = NewTextHandler(w, WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewAttributesHandler(handler)
}
