// Package logging builds the process zerolog logger: console output on a
// terminal, JSON otherwise, and an optional rotating log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string
	// Format is "auto" (console on a TTY, JSON otherwise), "console" or "json".
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a level name to zerolog. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "off":
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// New builds a logger writing to out (stderr when nil). The returned closer
// releases the log file, if any.
func New(opts Options, out *os.File) (zerolog.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var primary io.Writer = out
	if useConsole(opts.Format, out) {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{primary}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		// files always get JSON
		writers = append(writers, lj)
		closer = lj
	}
	var w io.Writer = primary
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "sessiond").Logger()
	return l, closer, nil
}

func useConsole(format string, out *os.File) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	default:
		return term.IsTerminal(int(out.Fd()))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
