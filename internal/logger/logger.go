package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions attaches a key/value field to a log entry
type LoggerOptions struct {
	Key  string
	Data interface{}
}

// Logger is the process logger. It discards everything until Init is called.
var Logger = zap.NewNop()

// Init replaces Logger with a production (JSON) or development (console) logger.
func Init(development bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Sync flushes buffered entries
func Sync() {
	_ = Logger.Sync()
}

func fields(payload []LoggerOptions) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

// Debug logs verbose diagnostics.
func Debug(msg string, payload ...LoggerOptions) {
	Logger.Debug(msg, fields(payload)...)
}

// Info logs info level messages.
func Info(msg string, payload ...LoggerOptions) {
	Logger.Info(msg, fields(payload)...)
}

// Warning logs warning messages.
func Warning(msg string, payload ...LoggerOptions) {
	Logger.Warn(msg, fields(payload)...)
}

// Error logs error messages.
// describe the incident in msg and pass the error through logger options
// with key error
func Error(msg string, payload ...LoggerOptions) {
	Logger.Error(msg, fields(payload)...)
}
