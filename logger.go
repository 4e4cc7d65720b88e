// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// MaxLogValueLength limits the length of a single logged value
const MaxLogValueLength = 1024

// Logger is the pluggable logging interface used by the session
//
// Implementations receive a message and alternating key/value pairs.
// The package ships three implementations:
//   - NoOpLogger: discards everything (default)
//   - DefaultLogger: Go's standard log package with a level threshold
//   - ZerologLogger: adapter for github.com/rs/zerolog
//
// Example:
//
//	session, _ := zhmc.NewSession("hmc1.example.com",
//	    zhmc.Userid("ensadmin"),
//	    zhmc.Password("secret"),
//	    zhmc.WithLogger(zhmc.NewDefaultLogger(zhmc.LogLevelInfo)))
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel represents the severity threshold for logging
type LogLevel int

const (
	// LogLevelDebug enables all log levels
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables Info, Warn, and Error logs
	LogLevelInfo

	// LogLevelWarn enables Warn and Error logs
	LogLevelWarn

	// LogLevelError enables only Error logs
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLogLevel converts a case-insensitive level name into a LogLevel
func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "INFO":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR":
		return LogLevelError, nil
	case "NONE", "OFF", "":
		return LogLevelNone, nil
	default:
		return LogLevelNone, fmt.Errorf("invalid log level: %s (valid values: debug, info, warn, error, none)", name)
	}
}

// DefaultLogger writes through Go's standard log package
//
// Output format: [LEVEL] message key1=value1 key2=value2
type DefaultLogger struct {
	level LogLevel
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level}
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

// Info logs an informational message
func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

// Error logs an error message
func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelError, msg, keysAndValues...)
}

// log formats a message with its key/value pairs. Keys and values are
// sanitized, the message itself is trusted.
func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues ...any) {
	if level < l.level || l.level == LogLevelNone {
		return
	}

	var builder strings.Builder
	builder.Grow(len(msg) + 10 + len(keysAndValues)*25)

	builder.WriteString("[")
	builder.WriteString(level.String())
	builder.WriteString("] ")
	builder.WriteString(msg)

	for i := 0; i < len(keysAndValues); i += 2 {
		builder.WriteString(" ")
		builder.WriteString(sanitizeLogValue(keysAndValues[i]))
		if i+1 < len(keysAndValues) {
			builder.WriteString("=")
			builder.WriteString(sanitizeLogValue(keysAndValues[i+1]))
		} else {
			builder.WriteString("=<MISSING>")
		}
	}

	log.Println(builder.String())
}

// sanitizeLogValue neutralizes control characters, ANSI escapes and
// invisible Unicode in a log value and truncates it to MaxLogValueLength.
//
// Example:
//
//	Input:  "user\n[ERROR] Fake attack message"
//	Output: "user [ERROR] Fake attack message"
func sanitizeLogValue(val any) string {
	str := fmt.Sprintf("%v", val)

	if len(str) > MaxLogValueLength {
		str = str[:MaxLogValueLength] + "...[TRUNCATED]"
	}

	var builder strings.Builder
	builder.Grow(len(str))

	for i := 0; i < len(str); {
		if str[i] >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(str[i:])
			switch {
			case r == utf8.RuneError:
				builder.WriteRune('.')
			case r == 0x200B, r == 0x200C, r == 0x200D, r == 0xFEFF:
				// zero-width characters are dropped
			case r == 0x202E:
				builder.WriteRune(' ')
			default:
				builder.WriteString(str[i : i+size])
			}
			i += size
			continue
		}

		switch c := str[i]; {
		case c == '\n', c == '\r', c == '\t', c == 0x0C:
			builder.WriteByte(' ')
		case c < 32 || c == 127:
			builder.WriteByte('.')
		default:
			builder.WriteByte(c)
		}
		i++
	}

	return builder.String()
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface
//
// Key/value pairs become zerolog fields. A logger stored in the context
// with zerolog's WithContext takes precedence over the wrapped one.
//
// Example:
//
//	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	session, _ := zhmc.NewSession("hmc1.example.com",
//	    zhmc.WithLogger(zhmc.NewZerologLogger(zl)))
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps the given zerolog.Logger
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// Debug logs a debug message
func (z *ZerologLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.DebugLevel).Fields(zerologFields(keysAndValues)).Msg(msg)
}

// Info logs an informational message
func (z *ZerologLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.InfoLevel).Fields(zerologFields(keysAndValues)).Msg(msg)
}

// Warn logs a warning message
func (z *ZerologLogger) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.WarnLevel).Fields(zerologFields(keysAndValues)).Msg(msg)
}

// Error logs an error message
func (z *ZerologLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.ErrorLevel).Fields(zerologFields(keysAndValues)).Msg(msg)
}

func (z *ZerologLogger) event(ctx context.Context, level zerolog.Level) *zerolog.Event {
	logger := &z.logger
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
			logger = l
		}
	}
	return logger.WithLevel(level)
}

// zerologFields converts alternating key/value pairs into a field map
func zerologFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := sanitizeLogValue(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fields[key] = keysAndValues[i+1]
		} else {
			fields[key] = "<MISSING>"
		}
	}
	return fields
}

// NoOpLogger discards all log messages. It is the default logger.
type NoOpLogger struct{}

// Debug discards the log message
func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...any) {}

// Info discards the log message
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...any) {}

// Warn discards the log message
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...any) {}

// Error discards the log message
func (n *NoOpLogger) Error(_ context.Context, _ string, _ ...any) {}
