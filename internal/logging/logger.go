// Package logging provides leveled, structured logging with correlation and
// session ids carried in context. Output is human-readable by default and
// JSON lines when LOG_FORMAT=json.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ParseLevel parses a log level string. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	sessionIDKey     contextKey = "session_id"
	fieldsKey        contextKey = "log_fields"
)

// Entry is the JSON shape of a log line.
type Entry struct {
	Timestamp     string         `json:"ts"`
	Level         string         `json:"level"`
	Message       string         `json:"msg"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// sink is shared by a logger and everything derived from it.
type sink struct {
	mu     sync.Mutex
	output io.Writer
	level  Level
	json   bool
}

// Logger is a structured logger with level support.
type Logger struct {
	sink   *sink
	fields map[string]any
}

var defaultLogger = New()

// New creates a logger writing to stderr, configured from LOG_LEVEL and
// LOG_FORMAT.
func New() *Logger {
	return &Logger{
		sink: &sink{
			output: os.Stderr,
			level:  ParseLevel(os.Getenv("LOG_LEVEL")),
			json:   os.Getenv("LOG_FORMAT") == "json",
		},
		fields: map[string]any{},
	}
}

// SetOutput sets the output destination.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetJSON enables or disables JSON output.
func (l *Logger) SetJSON(enabled bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.json = enabled
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.level
}

// WithField returns a derived logger with key set. The receiver is unchanged.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a derived logger with fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{sink: l.sink, fields: merged}
}

func (l *Logger) log(ctx context.Context, level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   msg,
	}

	fields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	if ctx != nil {
		entry.CorrelationID = GetCorrelationID(ctx)
		entry.SessionID = GetSessionID(ctx)
		if ctxFields, ok := ctx.Value(fieldsKey).(map[string]any); ok {
			for k, v := range ctxFields {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.json {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.sink.output, "ERROR: failed to marshal log entry: %v\n", err)
			return
		}
		fmt.Fprintln(l.sink.output, string(data))
		return
	}
	fmt.Fprintln(l.sink.output, formatText(entry))
}

// formatText renders an entry as a single human-readable line.
func formatText(e Entry) string {
	parts := []string{time.Now().Format("2006/01/02 15:04:05")}

	if e.CorrelationID != "" {
		id := e.CorrelationID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "["+id+"]")
	}
	parts = append(parts, "["+e.Level+"]")
	if e.SessionID != "" {
		parts = append(parts, "session="+e.SessionID)
	}
	parts = append(parts, e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", k, e.Fields[k]))
		}
		parts = append(parts, "{"+strings.Join(fieldParts, ", ")+"}")
	}

	return strings.Join(parts, " ")
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(context.Background(), LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(context.Background(), LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(context.Background(), LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(context.Background(), LevelError, format, args...)
}

func (l *Logger) DebugContext(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelDebug, format, args...)
}

func (l *Logger) InfoContext(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelInfo, format, args...)
}

func (l *Logger) WarnContext(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelWarn, format, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelError, format, args...)
}

// Printf logs at info level, for code written against the standard log package.
func (l *Logger) Printf(format string, args ...any) {
	l.log(context.Background(), LevelInfo, format, args...)
}

// --- Context helpers ---

// WithCorrelationID returns a context carrying a request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation id from ctx.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSessionID returns a context carrying an editing session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// GetSessionID retrieves the session id from ctx.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogFields returns a context with additional log fields.
func WithLogFields(ctx context.Context, fields map[string]any) context.Context {
	merged := make(map[string]any)
	if existing, ok := ctx.Value(fieldsKey).(map[string]any); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// --- Package-level functions using the default logger ---

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Configure applies a level name and output format to the default logger.
func Configure(level string, jsonFormat bool) {
	defaultLogger.SetLevel(ParseLevel(level))
	defaultLogger.SetJSON(jsonFormat)
}

func Debug(format string, args ...any) {
	defaultLogger.log(context.Background(), LevelDebug, format, args...)
}

func Info(format string, args ...any) {
	defaultLogger.log(context.Background(), LevelInfo, format, args...)
}

func Warn(format string, args ...any) {
	defaultLogger.log(context.Background(), LevelWarn, format, args...)
}

func Error(format string, args ...any) {
	defaultLogger.log(context.Background(), LevelError, format, args...)
}

func DebugContext(ctx context.Context, format string, args ...any) {
	defaultLogger.log(ctx, LevelDebug, format, args...)
}

func InfoContext(ctx context.Context, format string, args ...any) {
	defaultLogger.log(ctx, LevelInfo, format, args...)
}

func WarnContext(ctx context.Context, format string, args ...any) {
	defaultLogger.log(ctx, LevelWarn, format, args...)
}

func ErrorContext(ctx context.Context, format string, args ...any) {
	defaultLogger.log(ctx, LevelError, format, args...)
}
