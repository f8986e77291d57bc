// Package zaplog writes kratos log records through zap
package zaplog

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ log.Logger = (*Logger)(nil)

type Logger struct {
	zap *zap.Logger
}

func NewLogger(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// New builds a zap logger, json encoded in production and colored console otherwise
func New(production bool, level string) (*Logger, error) {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	if level != "" {
		l, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(l)
	}
	z, err := cfg.Build(zap.AddCallerSkip(3))
	if err != nil {
		return nil, err
	}
	return NewLogger(z), nil
}

// Log takes the message from the log.DefaultMessageKey pair, the remaining pairs become fields
func (l *Logger) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "KEYVALS UNPAIRED")
	}
	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case log.LevelDebug:
		l.zap.Debug(msg, fields...)
	case log.LevelInfo:
		l.zap.Info(msg, fields...)
	case log.LevelWarn:
		l.zap.Warn(msg, fields...)
	case log.LevelError:
		l.zap.Error(msg, fields...)
	case log.LevelFatal:
		l.zap.Fatal(msg, fields...)
	}
	return nil
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}
