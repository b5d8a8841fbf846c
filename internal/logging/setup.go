package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LoggerName is the name printed in every log line.
const LoggerName = "flowline.main"

// Options configures the run loggers.
type Options struct {
	// Dir receives the run log file. No file is written when empty.
	Dir     string
	RunName string
	Level   slog.Level
	Console io.Writer
	Now     func() time.Time
}

// Loggers bundles the loggers used during a run.
type Loggers struct {
	// Logger writes to the console and the log file.
	Logger *slog.Logger
	// StreamLogger writes to the log file only; it receives captured unit output.
	StreamLogger *slog.Logger
	// Path is the log file path, empty when no file is written.
	Path string

	file *os.File
}

// Setup creates the console and file loggers for a run.
func Setup(opts Options) (*Loggers, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunName == "" {
		opts.RunName = "run"
	}

	console := NewHandler(opts.Console, LoggerName, opts.Level)
	l := &Loggers{}

	if opts.Dir == "" {
		l.Logger = slog.New(console)
		l.StreamLogger = slog.New(NewHandler(io.Discard, LoggerName, slog.LevelError+1))
		return l, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.flowline.log", opts.RunName, opts.Now().Format("02Jan2006_150405"))
	l.Path = filepath.Join(opts.Dir, name)

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f

	fileHandler := NewHandler(f, LoggerName, slog.LevelDebug)
	l.Logger = slog.New(Tee(console, fileHandler))
	l.StreamLogger = slog.New(fileHandler)
	return l, nil
}

// Close flushes and closes the log file.
func (l *Loggers) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
