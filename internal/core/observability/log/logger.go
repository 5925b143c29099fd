package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

type Logger struct {
	zapLogger *zap.Logger
	level     zap.AtomicLevel
}

// Option adjusts the output of a logger built by New.
type Option func(*options)

type options struct {
	format   string
	out      zapcore.WriteSyncer
	sampling bool
}

// WithFormat selects "json" (the default) or "console" encoding.
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithOutput redirects entries away from stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = zapcore.AddSync(w) }
}

// WithSampling limits repeated entries to the first 100 per second and every
// 100th after that. Per-frame diagnostics of a large world rely on it.
func WithSampling(enabled bool) Option {
	return func(o *options) { o.sampling = enabled }
}

// New builds a logger writing at level and above.
func New(level Level, opts ...Option) *Logger {
	o := options{format: "json", out: zapcore.Lock(os.Stderr), sampling: true}
	for _, opt := range opts {
		opt(&o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if o.format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(level))
	core := zapcore.NewCore(enc, o.out, atomicLevel)
	if o.sampling {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}
	return &Logger{
		zapLogger: zap.New(core),
		level:     atomicLevel,
	}
}

// NewNop returns a logger that discards everything. Used by tests and by
// components constructed without an explicit logger.
func NewNop() *Logger {
	return &Logger{
		zapLogger: zap.NewNop(),
		level:     zap.NewAtomicLevelAt(zap.FatalLevel),
	}
}

func (l *Logger) Log(level Level, msg string, fields ...Field) {
	if level == LevelSilent || !l.level.Enabled(toZapLevel(level)) {
		return
	}
	l.zapLogger.Log(toZapLevel(level), msg, toZapFields(fields...)...)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.zapLogger.Debug(msg, toZapFields(fields...)...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.zapLogger.Info(msg, toZapFields(fields...)...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.zapLogger.Warn(msg, toZapFields(fields...)...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.zapLogger.Error(msg, toZapFields(fields...)...)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.zapLogger.Fatal(msg, toZapFields(fields...)...)
}

func (l *Logger) With(fields ...Field) Log {
	return &Logger{
		zapLogger: l.zapLogger.With(toZapFields(fields...)...),
		level:     l.level,
	}
}

func (l *Logger) WithContext(_ context.Context) Log {
	return l
}

func (l *Logger) SetLevel(level Level) {
	if level == LevelSilent {
		l.level.SetLevel(zap.FatalLevel + 1)
		return
	}
	l.level.SetLevel(toZapLevel(level))
}

func (l *Logger) GetLevel() Level {
	return fromZapLevel(l.level.Level())
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

// zapLevels is indexed by Level; LevelSilent maps past fatal.
var zapLevels = [...]zapcore.Level{
	LevelDebug: zap.DebugLevel,
	LevelInfo:  zap.InfoLevel,
	LevelWarn:  zap.WarnLevel,
	LevelError: zap.ErrorLevel,
	LevelFatal: zap.FatalLevel,
}

func toZapLevel(level Level) zapcore.Level {
	if level == LevelSilent {
		return zap.FatalLevel + 1
	}
	if int(level) < len(zapLevels) {
		return zapLevels[level]
	}
	return zap.InfoLevel
}

func fromZapLevel(level zapcore.Level) Level {
	if level > zap.FatalLevel {
		return LevelSilent
	}
	for l, zl := range zapLevels {
		if zl == level {
			return Level(l)
		}
	}
	return LevelInfo
}

func toZapFields(fields ...Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = toZapField(f)
	}
	return out
}

func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case string:
		return zap.String(f.Key, v)
	case uint64:
		return zap.Uint64(f.Key, v)
	case uint8:
		return zap.Uint8(f.Key, v)
	case error:
		if f.Type == ErrorType {
			return zap.NamedError(f.Key, v)
		}
	case fmt.Stringer:
		if f.Type == StringerType {
			return zap.Stringer(f.Key, v)
		}
	}
	return zap.Any(f.Key, f.Value)
}
