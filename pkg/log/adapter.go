// Package log provides logging utilities for the PuckRelay service.
// It includes a Zap logger wrapper with a Kratos adapter, automatic field
// sanitization and typed helpers for the request pipeline.
package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
)

// KratosAdapter adapts Zap logger to Kratos log.Logger interface
type KratosAdapter struct {
	zapLogger *zap.Logger
}

// NewKratosAdapter creates a new Kratos adapter for Zap logger
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{
		zapLogger: zapLogger.WithOptions(zap.AddCallerSkip(2)),
	}
}

// Log implements Kratos log.Logger interface.
// A "msg" key, when present, becomes the zap message instead of a field.
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields = append(fields, zap.Any(key, "KEYVALS UNPAIRED"))
			break
		}
		value := keyvals[i+1]

		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(value)
			continue
		}

		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, SanitizeField(key, v)))
		case error:
			fields = append(fields, zap.String(key, v.Error()))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch level {
	case log.LevelDebug:
		a.zapLogger.Debug(msg, fields...)
	case log.LevelInfo:
		a.zapLogger.Info(msg, fields...)
	case log.LevelWarn:
		a.zapLogger.Warn(msg, fields...)
	case log.LevelError:
		a.zapLogger.Error(msg, fields...)
	case log.LevelFatal:
		a.zapLogger.Fatal(msg, fields...)
	default:
		a.zapLogger.Info(msg, fields...)
	}

	return nil
}

// Sync flushes buffered log entries.
func (a *KratosAdapter) Sync() error {
	return a.zapLogger.Sync()
}
