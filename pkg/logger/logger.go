package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu         sync.RWMutex
	baseLogger *zap.Logger
	atomicLVL  zap.AtomicLevel
)

func init() {
	atomicLVL = zap.NewAtomicLevelAt(parseLevel(getEnv("CHAT_LOG_LEVEL", "info")))
	l, err := build([]string{getEnv("CHAT_LOG_OUTPUT", "stdout")})
	if err != nil {
		l, _ = build([]string{"stdout"})
	}
	baseLogger = l
}

func build(outputs []string) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:       atomicLVL,
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build(zap.AddCaller())
}

func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// Named 返回带组件名的子 logger
func Named(name string) *zap.Logger { return L().Named(name) }

func SetLevel(level string) { atomicLVL.SetLevel(parseLevel(level)) }

// Configure 重新设置日志级别与输出目标。output 可以是 stdout、stderr 或文件路径，逗号分隔多个目标。
func Configure(level, output string) error {
	SetLevel(level)
	var outputs []string
	for _, o := range strings.Split(output, ",") {
		if o = strings.TrimSpace(o); o != "" {
			outputs = append(outputs, o)
		}
	}
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	l, err := build(outputs)
	if err != nil {
		return err
	}
	mu.Lock()
	old := baseLogger
	baseLogger = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
