// Package zapadapter bridges ember's console logger interface onto a zap
// core backed by a lumberjack rotating file, for hosts that want ember's
// log events (startup banner, per-connection errors, idle-sweep disposal)
// folded into their own structured logging pipeline instead of the plain
// console writer.
package zapadapter

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/emberhttp/ember/log"
)

// Options configures the rotating file sink.
type Options struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      zapcore.Level
}

// Logger implements log.ILogger over a *zap.Logger.
type Logger struct {
	zl    *zap.Logger
	level log.Level
}

// New builds a Logger writing to a lumberjack-rotated file at opts.Filename.
func New(opts Options) (*Logger, error) {
	sink := &lumberjack.Logger{
		Filename:   opts.Filename,
		MaxSize:    nonZero(opts.MaxSizeMB, 100),
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(sink),
		opts.Level,
	)
	return &Logger{zl: zap.New(core), level: levelFromZap(opts.Level)}, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func levelFromZap(l zapcore.Level) log.Level {
	switch l {
	case zapcore.DebugLevel:
		return log.DebugLevel
	case zapcore.WarnLevel:
		return log.WarnLevel
	case zapcore.ErrorLevel:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func (l *Logger) SetLevel(level log.Level) { l.level = level }
func (l *Logger) GetLevel() log.Level      { return l.level }

func (l *Logger) Debug() log.IEvent { return &event{zl: l.zl, fn: l.zl.Debug} }
func (l *Logger) Info() log.IEvent  { return &event{zl: l.zl, fn: l.zl.Info} }
func (l *Logger) Warn() log.IEvent  { return &event{zl: l.zl, fn: l.zl.Warn} }
func (l *Logger) Error() log.IEvent { return &event{zl: l.zl, fn: l.zl.Error} }
func (l *Logger) Fatal() log.IEvent { return &event{zl: l.zl, fn: l.zl.Fatal} }

// Sync flushes buffered log entries, aggregating the sink's close/flush
// errors with multierr the way the teacher's zap-adjacent tooling does.
func (l *Logger) Sync() error {
	return multierr.Combine(l.zl.Sync())
}

type event struct {
	zl     *zap.Logger
	fn     func(msg string, fields ...zap.Field)
	fields []zap.Field
}

func (e *event) Err(err error) log.IEvent {
	if err != nil {
		e.fields = append(e.fields, zap.Error(err))
	}
	return e
}

func (e *event) Msg(msg string) {
	e.fn(msg, e.fields...)
}

func (e *event) Msgf(format string, v ...interface{}) {
	e.fn(fmt.Sprintf(format, v...), e.fields...)
}
