package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how the client logs.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// File, when set, sends output to a size-rotated file instead of stderr.
	File string

	// MaxSizeMB and MaxBackups control rotation of File.
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// New builds a logger from opts. Interactive terminals get the text format,
// everything else (files, pipes, service managers) gets JSON. The returned
// closer releases the log file and is a no-op for stderr.
func New(opts Options) (*SlogLogger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	ho := &slog.HandlerOptions{Level: level}

	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		return NewSlogLogger(slog.New(slog.NewJSONHandler(rot, ho))), rot, nil
	}

	var h slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		h = slog.NewTextHandler(os.Stderr, ho)
	} else {
		h = slog.NewJSONHandler(os.Stderr, ho)
	}
	return NewSlogLogger(slog.New(h)), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
