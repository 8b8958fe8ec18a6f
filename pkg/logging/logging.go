// Package logging provides the shared log backend. Every component asks the
// backend for a subsystem logger and all loggers share the configured level and
// outputs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig configures the backend.
type LogConfig struct {
	LogFile     string // empty disables file output
	DebugLevel  string
	MaxLogFiles int
	// Stdout overrides the console writer. Nil means os.Stdout.
	Stdout io.Writer
}

// LogBackend hands out subsystem loggers writing to stdout and an optional
// rotating log file.
type LogBackend struct {
	backend *slog.Backend
	level   slog.Level
	rotator *rotator.Rotator
	pipe    *io.PipeWriter

	mu      sync.Mutex
	loggers map[string]slog.Logger
}

type logWriter struct {
	stdout io.Writer
	file   io.Writer
}

func (w logWriter) Write(p []byte) (int, error) {
	w.stdout.Write(p)
	if w.file != nil {
		w.file.Write(p)
	}
	return len(p), nil
}

// NewLogBackend creates a backend from cfg.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	level := slog.LevelInfo
	if cfg.DebugLevel != "" {
		lvl, ok := slog.LevelFromString(cfg.DebugLevel)
		if !ok {
			return nil, fmt.Errorf("invalid debug level %q", cfg.DebugLevel)
		}
		level = lvl
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	w := logWriter{stdout: stdout}
	lb := &LogBackend{
		level:   level,
		loggers: make(map[string]slog.Logger),
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		maxRolls := cfg.MaxLogFiles
		if maxRolls <= 0 {
			maxRolls = 3
		}
		r, err := rotator.New(cfg.LogFile, 10*1024, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
		pr, pw := io.Pipe()
		go r.Run(pr)
		lb.rotator = r
		lb.pipe = pw
		w.file = pw
	}

	lb.backend = slog.NewBackend(w)
	return lb, nil
}

// Logger returns the logger for subsystem, creating it on first use.
func (lb *LogBackend) Logger(subsystem string) slog.Logger {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if l, ok := lb.loggers[subsystem]; ok {
		return l
	}
	l := lb.backend.Logger(subsystem)
	l.SetLevel(lb.level)
	lb.loggers[subsystem] = l
	return l
}

// SetLevel changes the level of every logger handed out so far and of the ones
// created later.
func (lb *LogBackend) SetLevel(level slog.Level) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.level = level
	for _, l := range lb.loggers {
		l.SetLevel(level)
	}
}

// Close flushes and closes the rotating file, if any.
func (lb *LogBackend) Close() error {
	if lb.pipe != nil {
		lb.pipe.Close()
	}
	if lb.rotator != nil {
		return lb.rotator.Close()
	}
	return nil
}
