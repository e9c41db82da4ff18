package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process-wide logger. Starts as a no-op so packages can log before (or without) init.
var globalLogger = zap.NewNop()

// L returns the process logger.
func L() *zap.Logger { return globalLogger }

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.Logger { return globalLogger.Named(component) }

// Set replaces the process logger. Passing nil restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalLogger = l
}

type settings struct {
	level   zapcore.Level
	format  string // legacy, console or json
	console bool
	file    string // empty disables the file sink
}

func settingsFromEnv() settings {
	s := settings{
		level:   parseLevel(os.Getenv("LOG_LEVEL")),
		format:  strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		console: envBool("LOG_TO_CONSOLE", true),
	}
	if s.format != "json" && s.format != "console" {
		s.format = "legacy"
	}
	if envBool("LOG_TO_FILE", false) {
		s.file = strings.TrimSpace(os.Getenv("LOG_FILE"))
		if s.file == "" {
			s.file = filepath.Join("logs", "secretqueen.log")
		}
	}
	return s
}

// InitFromEnv builds the process logger from LOG_LEVEL, LOG_FORMAT,
// LOG_TO_CONSOLE, LOG_TO_FILE and LOG_FILE.
func InitFromEnv() error {
	l, err := build(settingsFromEnv())
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func build(s settings) (*zap.Logger, error) {
	enc := encoderFor(s.format)
	var cores []zapcore.Core
	if s.console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), s.level))
	}
	if s.file != "" {
		if dir := filepath.Dir(s.file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("log dir: %w", err)
			}
		}
		f, err := os.OpenFile(s.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), s.level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if s.format != "json" {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func encoderFor(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "json":
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
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

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}
