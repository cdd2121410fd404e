// Package logging builds the command-line logger: human-readable output on
// stderr plus an optional rotating log file per device.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

const (
	rotationCount = 20
	rotationTime  = 24 * time.Hour
)

// Options selects where and how much to log
type Options struct {
	Level     string // explicit level name, wins over Verbosity
	Verbosity int    // 0 info, 1 debug, 2 or more trace
	Console   io.Writer
	LogDir    string // empty disables the file log
	Device    string // names the log file
}

// New returns a logger and a closer for the file log, if any
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := resolveLevel(opts.Level, opts.Verbosity)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}}

	var closer io.Closer = nopCloser{}
	if opts.LogDir != "" && opts.Device != "" {
		file, err := newRotatingFile(opts.LogDir, opts.Device)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, closer, nil
}

// FilePath is the current log file of a device; older files carry a date
func FilePath(logDir, device string) string {
	return filepath.Join(logDir, fileBase(device)+".log")
}

func newRotatingFile(logDir, device string) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	pattern := filepath.Join(logDir, fileBase(device)+".%Y%m%d.log")
	file, err := rotatelogs.New(pattern,
		rotatelogs.WithLinkName(FilePath(logDir, device)),
		rotatelogs.WithRotationTime(rotationTime),
		rotatelogs.WithRotationCount(rotationCount),
	)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func resolveLevel(name string, verbosity int) (zerolog.Level, error) {
	if name = strings.TrimSpace(name); name != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(name))
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("invalid log level %q", name)
		}
		return level, nil
	}
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel, nil
	case verbosity == 1:
		return zerolog.DebugLevel, nil
	default:
		return zerolog.TraceLevel, nil
	}
}

func fileBase(device string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(device)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
