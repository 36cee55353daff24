package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pacelab/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Logger is a sugared zap logger that also reports Errorw calls to the
// configured error tracker
type Logger struct {
	*zap.SugaredLogger
	errorTracker errors.Tracker
}

// Init builds the global logger. Production uses JSON output; everything
// else gets the colored console encoder.
func Init(level string, env string) error {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	z, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = &Logger{SugaredLogger: z.Sugar()}
	globalMu.Unlock()
	return nil
}

// SetErrorTracker routes Errorw calls of loggers derived from now on to tracker
func SetErrorTracker(tracker errors.Tracker) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.errorTracker = tracker
	}
}

// Get returns the global logger, falling back to a development logger
// before Init runs
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		z, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: z.Sugar()}
	}
	return globalLogger
}

func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		errorTracker:  l.errorTracker,
	}
}

// Errorw logs at error level and captures the event. An "error" value among
// keysAndValues is reported as the cause; string values become tags.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	if l.errorTracker == nil {
		return
	}

	tags, err := trackerEvent(msg, keysAndValues)
	_ = l.errorTracker.CaptureError(context.Background(), err, tags)
}

func trackerEvent(msg string, keysAndValues []interface{}) (map[string]string, error) {
	tags := map[string]string{}
	var cause error

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			if key == "error" {
				cause = v
			}
		case string:
			tags[key] = v
		case fmt.Stringer:
			tags[key] = v.String()
		}
	}

	if cause == nil {
		return tags, errors.Wrap(errors.ErrInternal, msg)
	}
	if kind := errors.Kind(cause); kind != "" {
		tags["kind"] = kind
	}
	return tags, errors.Wrap(cause, msg)
}

// Sync flushes buffered entries of the global logger
func Sync() error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
