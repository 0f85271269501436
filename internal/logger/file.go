package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initFileLogger opens path for append and routes a copy of every record to it.
func initFileLogger(path string, level slog.Level) error {
	if fileLogger != nil {
		_ = fileLogger.Sync()
		fileLogger = nil
	}
	if path == "" || strings.EqualFold(path, "none") {
		return nil
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.WithCaller(false))
	if err != nil {
		return err
	}
	fileLogger = l
	return nil
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func writeFile(level slog.Level, msg string, args []any) {
	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			fields = append(fields, zapField(a.Key, a.Value.Any()))
		case string:
			if i+1 >= len(args) {
				fields = append(fields, zap.String("!BADKEY", a))
				continue
			}
			fields = append(fields, zapField(a, args[i+1]))
			i++
		default:
			fields = append(fields, zap.Any("!BADKEY", a))
		}
	}

	switch zapLevel(level) {
	case zapcore.ErrorLevel:
		fileLogger.Error(msg, fields...)
	case zapcore.WarnLevel:
		fileLogger.Warn(msg, fields...)
	case zapcore.InfoLevel:
		fileLogger.Info(msg, fields...)
	default:
		fileLogger.Debug(msg, fields...)
	}
}

func zapField(key string, v any) zap.Field {
	switch val := v.(type) {
	case error:
		return zap.NamedError(key, val)
	case slog.Value:
		return zap.String(key, val.String())
	case []slog.Attr:
		parts := make([]string, 0, len(val))
		for _, a := range val {
			parts = append(parts, a.String())
		}
		return zap.String(key, strings.Join(parts, " "))
	case fmt.Stringer:
		return zap.Stringer(key, val)
	default:
		return zap.Any(key, val)
	}
}
