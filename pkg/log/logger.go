// Structured logging for the relaytune daemon
//
// Leveled, prefixed loggers with structured fields and a choice of
// human-readable text or JSON output. Every component of the daemon
// obtains its own prefixed logger from this package.
//
// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug for detailed diagnostic output (per-tick traces).
	LevelDebug Level = iota

	// LevelInfo for normal operational messages.
	LevelInfo

	// LevelWarn for recoverable anomalies.
	LevelWarn

	// LevelError for failures.
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding.
type Format int

const (
	// FormatText emits human-readable lines.
	FormatText Format = iota
	// FormatJSON emits one JSON object per line.
	FormatJSON
)

// Fields holds structured key-value pairs attached to a message.
type Fields map[string]interface{}

// Logger is a leveled, prefixed logger.
type Logger struct {
	mu       sync.Mutex
	prefix   string
	writer   io.Writer
	level    Level
	format   Format
	colorize bool
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger

	levelColors = map[Level]string{
		LevelDebug: "\x1b[36m",
		LevelInfo:  "\x1b[32m",
		LevelWarn:  "\x1b[33m",
		LevelError: "\x1b[31m",
	}
)

const colorReset = "\x1b[0m"

// New creates a logger writing to stderr with the given component prefix.
func New(prefix string) *Logger {
	l := &Logger{
		prefix:   prefix,
		writer:   os.Stderr,
		level:    LevelInfo,
		format:   FormatText,
		colorize: os.Getenv("NO_COLOR") == "",
	}
	l.configureFromEnv()
	return l
}

// configureFromEnv applies RELAYTUNE_LOG_LEVEL and RELAYTUNE_LOG_FORMAT.
func (l *Logger) configureFromEnv() {
	if s := os.Getenv("RELAYTUNE_LOG_LEVEL"); s != "" {
		l.level = ParseLevel(s)
	}
	if s := os.Getenv("RELAYTUNE_LOG_FORMAT"); strings.EqualFold(s, "json") {
		l.format = FormatJSON
	}
}

// SetLevel sets the minimum level that will be written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetWriter redirects output, e.g. to a rotating file or a test buffer.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetFormat selects text or JSON output.
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = f
}

// SetColorize enables or disables ANSI colors in text output.
func (l *Logger) SetColorize(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = on
}

// WithPrefix returns a derived logger sharing writer, level and format.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:   prefix,
		writer:   l.writer,
		level:    l.level,
		format:   l.format,
		colorize: l.colorize,
	}
}

// Debug logs a formatted message at LevelDebug.
func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(LevelDebug, msg, args, nil) }

// Info logs a formatted message at LevelInfo.
func (l *Logger) Info(msg string, args ...interface{}) { l.emit(LevelInfo, msg, args, nil) }

// Warn logs a formatted message at LevelWarn.
func (l *Logger) Warn(msg string, args ...interface{}) { l.emit(LevelWarn, msg, args, nil) }

// Error logs a formatted message at LevelError.
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(LevelError, msg, args, nil) }

// DebugFields logs a message with structured fields at LevelDebug.
func (l *Logger) DebugFields(msg string, fields Fields) { l.emit(LevelDebug, msg, nil, fields) }

// InfoFields logs a message with structured fields at LevelInfo.
func (l *Logger) InfoFields(msg string, fields Fields) { l.emit(LevelInfo, msg, nil, fields) }

// WarnFields logs a message with structured fields at LevelWarn.
func (l *Logger) WarnFields(msg string, fields Fields) { l.emit(LevelWarn, msg, nil, fields) }

// ErrorFields logs a message with structured fields at LevelError.
func (l *Logger) ErrorFields(msg string, fields Fields) { l.emit(LevelError, msg, nil, fields) }

func (l *Logger) emit(level Level, msg string, args []interface{}, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var line string
	if l.format == FormatJSON {
		line = l.formatJSON(level, msg, fields)
	} else {
		line = l.formatText(level, msg, fields)
	}
	fmt.Fprint(l.writer, line)
}

func (l *Logger) formatText(level Level, msg string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	sb.WriteString("] ")
	if l.colorize {
		sb.WriteString(levelColors[level])
	}
	sb.WriteString(l.prefix)
	if l.colorize {
		sb.WriteString(colorReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields) string {
	entry := jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error":"marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

// SetDefault replaces the package default logger used by GetLogger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetLogger returns a logger derived from the default with the given prefix.
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("relaytune")
	}
	return defaultLogger.WithPrefix(prefix)
}
