package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the sugared zap logger behind the package level helpers.
// The level is shared by every child created with With so SetLevel applies
// to all of them.
type ZapLogger struct {
	log   *zap.SugaredLogger
	level zap.AtomicLevel
}

var zapLogger *ZapLogger

// NewLogger builds the global logger. Timestamps are ISO8601 so ledger and
// payout log lines sort the same way as the audit tables.
func NewLogger(config zap.Config) (*ZapLogger, error) {
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "ts"
	l, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	zapLogger = &ZapLogger{log: l.Sugar(), level: config.Level}
	return zapLogger, nil
}

func GetLogger() *ZapLogger {
	if zapLogger == nil {
		panic("logger not initialized")
	}
	return zapLogger
}

// With returns a child carrying the given key/value pairs. Its methods are
// called directly, one frame closer than the package helpers.
func (l *ZapLogger) With(values ...any) *ZapLogger {
	child := l.log.With(values...).Desugar().WithOptions(zap.AddCallerSkip(-1))
	return &ZapLogger{log: child.Sugar(), level: l.level}
}

func (l *ZapLogger) Panic(message string, values ...any) { l.log.Panicw(message, values...) }
func (l *ZapLogger) Fatal(err error, values ...any)      { l.log.Fatalw(err.Error(), values...) }
func (l *ZapLogger) Info(message string, values ...any)  { l.log.Infow(message, values...) }
func (l *ZapLogger) Warn(message string, values ...any)  { l.log.Warnw(message, values...) }
func (l *ZapLogger) Error(message string, values ...any) { l.log.Errorw(message, values...) }
func (l *ZapLogger) Debug(message string, values ...any) { l.log.Debugw(message, values...) }

// Printf lets fasthttp log through zap. Its messages are transport noise,
// so they go out at debug.
func (l *ZapLogger) Printf(format string, args ...any) {
	l.log.Debugf(format, args...)
}
