package logger

import (
	"os"

	"go.uber.org/zap"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

// init installs a logger before config is loaded so startup failures are
// still logged. LOG_ENV=production switches to the json encoder.
func init() {
	config := zap.NewDevelopmentConfig()
	if os.Getenv("LOG_ENV") == "production" {
		config = zap.NewProductionConfig()
		config.Sampling = nil
	}
	config.InitialFields = map[string]any{"service": "finance-core"}

	if _, err := NewLogger(config); err != nil {
		panic(err)
	}
}

// SetLevel accepts zap level names ("debug", "info", ...). Unknown names are ignored.
func SetLevel(level string) {
	var l zap.AtomicLevel
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return
	}
	GetLogger().level.SetLevel(l.Level())
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(error error, values ...any) {
	GetLogger().Fatal(error, values...)
}

// With returns a child logger that always carries the given key/value pairs.
func With(values ...any) Logger {
	return GetLogger().With(values...)
}

func Sync() {
	_ = GetLogger().log.Sync()
}
