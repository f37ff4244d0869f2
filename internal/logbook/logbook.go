package logbook

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options tunes a Logbook.
type Options struct {
	// Echo receives a copy of every entry at Debug level and above (the
	// --verbose flag points it at stderr).
	Echo io.Writer
}

// Logbook persists session progress to a text file so users can inspect
// failures after the menu exits.
type Logbook struct {
	path    string
	session string
	mu      sync.Mutex
	file    *fileSink
	logger  *zap.Logger
}

// fileSink is the logbook file as loggers see it. Loggers handed out by
// Logger outlive Close; their writes after Close are dropped.
type fileSink struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return len(p), nil
	}
	return s.file.Write(p)
}

func (s *fileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.file.Sync()
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// New opens (or creates) the logbook at path.
func New(path string, opts Options) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbook: open %s: %w", path, err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	sink := &fileSink{file: file}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zapcore.InfoLevel),
	}
	if opts.Echo != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(opts.Echo), zapcore.DebugLevel))
	}
	session := uuid.NewString()
	logger := zap.New(zapcore.NewTee(cores...)).With(zap.String("session", session[:8]))
	return &Logbook{path: path, session: session, file: sink, logger: logger}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Session returns the id stamped on every entry of this process.
func (l *Logbook) Session() string {
	if l == nil {
		return ""
	}
	return l.session
}

// Logger exposes the structured logger for components that take fields.
// A nil logbook yields a no-op logger.
func (l *Logbook) Logger() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil || l.logger == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	message = strings.TrimSpace(message)
	switch level {
	case LevelDebug:
		l.logger.Debug(message)
	case LevelWarn:
		l.logger.Warn(message)
	case LevelError:
		l.logger.Error(message)
	default:
		l.logger.Info(message)
	}
}

// Close flushes and releases the file handle.
func (l *Logbook) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.logger.Sync()
	err := l.file.Close()
	l.file = nil
	l.logger = zap.NewNop()
	return err
}

// Tail returns up to maxLines of the most recent entries and the total
// number of lines in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Debug appends a diagnostic entry (only visible with an Echo writer).
func (l *Logbook) Debug(format string, args ...any) {
	l.Append(LevelDebug, fmt.Sprintf(format, args...))
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
