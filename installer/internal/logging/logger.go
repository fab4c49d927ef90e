package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the console handler and the optional audit file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// File, when set, receives a JSON copy of every record, rotated by size.
	File string
}

// New builds the installer logger. The returned closer flushes the audit file
// and must be called before exit.
func New(console io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler
	switch opts.Format {
	case "json":
		primary = slog.NewJSONHandler(console, handlerOpts)
	case "", "text":
		primary = slog.NewTextHandler(console, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == "" {
		return slog.New(primary), io.NopCloser(nil), nil
	}

	rotated := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    5, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	audit := slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(fanout{primary, audit}), rotated, nil
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("failed parsing log-level %s: %w", s, err)
	}
	return l, nil
}
