// Package log provides the default zerolog-backed Logger implementation.
//
// The zerolog backend is the production logger for GoChoice: structured JSON
// output, level filtering, and automatic expansion of pkg/errors types through
// their zerolog object marshalers. Estimators obtain loggers through
// GetLogger/GetLoggerWithName so that tests can swap in a TestLoggerProvider.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	logger zerolog.Logger
}

// Debug implements Logger.Debug.
func (z *zerologLogger) Debug(msg string, fields ...any) {
	applyEventFields(z.logger.Debug(), fields...).Msg(msg)
}

// Info implements Logger.Info.
func (z *zerologLogger) Info(msg string, fields ...any) {
	applyEventFields(z.logger.Info(), fields...).Msg(msg)
}

// Warn implements Logger.Warn.
func (z *zerologLogger) Warn(msg string, fields ...any) {
	applyEventFields(z.logger.Warn(), fields...).Msg(msg)
}

// Error implements Logger.Error.
func (z *zerologLogger) Error(msg string, fields ...any) {
	applyEventFields(z.logger.Error(), fields...).Msg(msg)
}

// With implements Logger.With.
func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fieldKey(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			if m, ok := errObjectMarshaler(v); ok {
				ctx = ctx.Object(key, m)
			} else {
				ctx = ctx.AnErr(key, v)
			}
		case zerolog.LogObjectMarshaler:
			ctx = ctx.Object(key, v)
		case string:
			ctx = ctx.Str(key, v)
		case int:
			ctx = ctx.Int(key, v)
		case int64:
			ctx = ctx.Int64(key, v)
		case float64:
			ctx = ctx.Float64(key, v)
		case bool:
			ctx = ctx.Bool(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	lvl := toZerologLevel(level)
	return lvl >= z.logger.GetLevel() && lvl >= zerolog.GlobalLevel()
}

// applyEventFields maps key-value pairs onto a zerolog event.
// Errors are attached with their stack trace (when carrying one) and expanded
// through MarshalZerologObject when the error type implements it.
func applyEventFields(e *zerolog.Event, fields ...any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fieldKey(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			if m, ok := errObjectMarshaler(v); ok {
				e = e.Object(key, m)
			} else {
				e = e.AnErr(key, v)
			}
			if st := extractStacktrace(v); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case float64:
			e = e.Float64(key, v)
		case bool:
			e = e.Bool(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func fieldKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}

// errObjectMarshaler walks the unwrap chain looking for a structured error
// type that knows how to marshal itself. Constructors in pkg/errors wrap the
// typed error with a stack, so the marshaler usually sits one level down.
func errObjectMarshaler(err error) (zerolog.LogObjectMarshaler, bool) {
	for e := err; e != nil; {
		if m, ok := e.(zerolog.LogObjectMarshaler); ok {
			return m, true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return nil, false
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologProvider implements LoggerProvider on top of zerolog.
type ZerologProvider struct {
	base zerolog.Logger
}

// NewZerologProvider creates a provider writing JSON records to w.
func NewZerologProvider(w io.Writer) *ZerologProvider {
	return &ZerologProvider{
		base: zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger(),
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{logger: p.base}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{logger: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.base = p.base.Level(toZerologLevel(level))
}

var (
	providerMu      sync.RWMutex
	defaultProvider LoggerProvider = NewZerologProvider(os.Stderr)
)

// SetProvider replaces the package-level logger provider.
// Pass a TestLoggerProvider in tests to capture estimator logs.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	defaultProvider = p
}

// GetLogger returns the default logger from the current provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a named component logger from the current provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level on the current provider.
func SetLevel(level Level) {
	providerMu.Lock()
	defer providerMu.Unlock()
	defaultProvider.SetLevel(level)
}

// RouteWarnings redirects pkg/errors warnings (ConvergenceWarning and friends)
// through the structured logger instead of the stdlib fallback handler.
// Call once at program start; tests that install their own warning handler
// should not call this.
func RouteWarnings() {
	errors.SetZerologWarnFunc(func(warning error) {
		GetLogger().Warn(warning.Error(), ErrAttrKey, warning)
	})
}
