// Package logging 基于 zap 构建进程级 Logger。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	out    zapcore.WriteSyncer
	fields []zap.Field
}

type Option func(*options)

// WithOutput 指定日志输出，默认 stderr。TUI 模式下应写到文件或 io.Discard，避免打乱界面。
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = zapcore.AddSync(w) }
}

// WithFields 为所有日志附加固定字段。
func WithFields(fields ...zap.Field) Option {
	return func(o *options) { o.fields = append(o.fields, fields...) }
}

// ParseLevel 解析 debug/info/warn/error。
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New 按级别和格式（json|console）构建 Logger。
func New(level, format string, opts ...Option) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	o := options{out: zapcore.Lock(os.Stderr)}
	for _, opt := range opts {
		opt(&o)
	}

	enc, err := newEncoder(format)
	if err != nil {
		return nil, err
	}
	logger := zap.New(zapcore.NewCore(enc, o.out, lvl), zap.AddStacktrace(zapcore.ErrorLevel))
	if len(o.fields) > 0 {
		logger = logger.With(o.fields...)
	}
	return logger, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	}
	return nil, fmt.Errorf("invalid log format %q (supported: console, json)", format)
}
