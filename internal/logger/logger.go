// Package logger builds the slog logger used across biolock.
package logger

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/illarion/biolock/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a logger from settings. Console logs go to w as text; file
// logs are JSON with rotation. The returned closer releases the log file.
func New(s config.LoggerSettings, w io.Writer) (*slog.Logger, io.Closer, error) {
	switch s.Type {
	case config.LogTypeConsole:
		return NewConsole(w, s.Level), nopCloser{}, nil
	case config.LogTypeFile:
		if s.FilePath == "" {
			return nil, nil, fmt.Errorf("file path required for file logger")
		}
		return NewFile(s)
	default:
		return nil, nil, fmt.Errorf("unsupported log type: %s", s.Type)
	}
}

// NewConsole creates a text logger writing to w
func NewConsole(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewFile creates a JSON logger writing to a rotated file
func NewFile(s config.LoggerSettings) (*slog.Logger, io.Closer, error) {
	writer := &lumberjack.Logger{
		Filename:   s.FilePath,
		MaxSize:    s.MaxSize,
		MaxBackups: s.MaxBackups,
		MaxAge:     s.MaxAge,
		Compress:   true,
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(s.Level),
	}
	return slog.New(slog.NewJSONHandler(writer, opts)), writer, nil
}

// ParseLevel maps a level name to a slog level, info when unknown
func ParseLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelInfo:
		return slog.LevelInfo
	case config.LogLevelWarning:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
