// Package logging builds the zap logger used across w3ccheck.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/maxvaer/w3ccheck/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to console at the configured level. When
// cfg.File is set, a JSON copy of every entry also goes to that file,
// rotated by lumberjack.
func New(cfg config.LogOptions, console zapcore.WriteSyncer, noColor bool) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.WarnLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format, noColor), console, level)}

	if cfg.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder("json", true), fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("w3ccheck")
}

// NewStderr is New writing console output to a locked stderr, leaving
// stdout for reports.
func NewStderr(cfg config.LogOptions, noColor bool) *zap.Logger {
	return New(cfg, zapcore.Lock(os.Stderr), noColor)
}

func encoder(format string, noColor bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if format == "json" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}

	ec.EncodeLevel = levelEncoder(noColor)
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

var levelColors = map[zapcore.Level]*color.Color{
	zapcore.DebugLevel: color.New(color.FgCyan),
	zapcore.InfoLevel:  color.New(color.FgGreen),
	zapcore.WarnLevel:  color.New(color.FgYellow),
	zapcore.ErrorLevel: color.New(color.FgRed),
}

func levelEncoder(noColor bool) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		s := strings.ToUpper(level.String())
		c, ok := levelColors[level]
		if noColor || !ok {
			enc.AppendString(s)
			return
		}
		enc.AppendString(c.Sprint(s))
	}
}

// Sync flushes buffered entries, ignoring the errors some platforms return
// when syncing a terminal.
func Sync(l *zap.Logger) {
	if err := l.Sync(); err != nil {
		msg := err.Error()
		if !strings.Contains(msg, "/dev/std") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "inappropriate ioctl") &&
			!strings.Contains(msg, "operation not supported") {
			fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
		}
	}
}
