// Package logging provides zap-based structured logging
package logging

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "trigger-engine/internal/common/errors"
)

// ZapAdapter implements Logger on top of a zap core
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapLogger builds a logger writing to config.Output (stdout when nil).
// Format "json" selects the JSON encoder; anything else is console output.
func NewZapLogger(config LogConfig) (Logger, error) {
	var out io.Writer = os.Stdout
	if config.Output != nil {
		out = config.Output
	}

	core := zapcore.NewCore(newEncoder(config.Format), zapcore.AddSync(out), zapLevel(config.Level))
	logger := zap.New(core)
	if config.Prefix != "" {
		logger = logger.Named(config.Prefix)
	}
	return &ZapAdapter{logger: logger}, nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		FunctionKey:    zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	if format == "json" {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func (z *ZapAdapter) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, zapFields(fields)...)
}

func (z *ZapAdapter) Info(msg string, fields ...Field) {
	z.logger.Info(msg, zapFields(fields)...)
}

func (z *ZapAdapter) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, zapFields(fields)...)
}

// Error logs msg with err attached. Typed application errors also contribute
// their type, code and trigger id as separate fields.
func (z *ZapAdapter) Error(msg string, err error, fields ...Field) {
	zf := zapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
		zf = append(zf, appErrorFields(err)...)
	}
	z.logger.Error(msg, zf...)
}

// WithFields returns a child logger carrying fields on every entry
func (z *ZapAdapter) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(zapFields(fields)...)}
}

// WithContext returns a child logger carrying the request and correlation ids found in ctx
func (z *ZapAdapter) WithContext(ctx context.Context) Logger {
	return z.WithFields(contextFields(ctx)...)
}

// Sync flushes buffered entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func appErrorFields(err error) []zap.Field {
	appErr, ok := apperrors.As(err)
	if !ok {
		return nil
	}
	fields := []zap.Field{zap.String("error_type", string(appErr.Type))}
	if appErr.Code != "" {
		fields = append(fields, zap.String("error_code", appErr.Code))
	}
	if id, ok := appErr.Context["trigger_id"].(string); ok && id != "" {
		fields = append(fields, zap.String("error_trigger_id", id))
	}
	return fields
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out[i] = zap.NamedError(f.Key, v)
		case string:
			out[i] = zap.String(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}
