// File: internal/observability/logger.go

// Package observability owns the process logger and the per-run execution log.
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

var (
	current  atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

const (
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorReset   = "\x1b[0m"
)

// ansiByName resolves the color names accepted in logger.colors.
func ansiByName(name string) string {
	switch strings.ToLower(name) {
	case "red":
		return colorRed
	case "green":
		return colorGreen
	case "yellow":
		return colorYellow
	case "blue":
		return colorBlue
	case "magenta":
		return colorMagenta
	case "cyan":
		return colorCyan
	case "white":
		return colorWhite
	default:
		return ""
	}
}

// timeLayout keeps console and file timestamps identical.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Initialize installs the process logger. Console lines go to console; when
// cfg.LogFile is set every entry is also written there as JSON. Only the
// first call has any effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		logger := build(cfg, console)
		current.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger logs to stderr, leaving stdout to command output.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest forgets the installed logger so the next Initialize applies.
func ResetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
}

func build(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	enabler := zap.NewAtomicLevelAt(level)

	tee := []zapcore.Core{zapcore.NewCore(newEncoder(cfg.Format, cfg.Colors), console, enabler)}
	if cfg.LogFile != "" {
		file := zapcore.AddSync(newRotatingFile(cfg, cfg.LogFile))
		tee = append(tee, zapcore.NewCore(newEncoder("json", config.ColorConfig{}), file, enabler))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(tee...), opts...).Named(cfg.ServiceName)
}

// newRotatingFile is shared by the process log and the execution log.
func newRotatingFile(cfg config.LoggerConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// levelEncoder prints upper-case levels wrapped in the configured colors.
func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	palette := map[zapcore.Level]string{
		zapcore.DebugLevel:  ansiByName(colors.Debug),
		zapcore.InfoLevel:   ansiByName(colors.Info),
		zapcore.WarnLevel:   ansiByName(colors.Warn),
		zapcore.ErrorLevel:  ansiByName(colors.Error),
		zapcore.DPanicLevel: ansiByName(colors.DPanic),
		zapcore.PanicLevel:  ansiByName(colors.Panic),
		zapcore.FatalLevel:  ansiByName(colors.Fatal),
	}
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := l.CapitalString()
		if c := palette[l]; c != "" {
			name = c + name + colorReset
		}
		enc.AppendString(name)
	}
}

func newEncoder(format string, colors config.ColorConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)

	if format != "console" {
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = levelEncoder(colors)
	// "chatprobe.runner." reads better than a bare name column.
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// GetLogger returns the installed logger, or a development logger when
// Initialize has not run yet.
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	dev, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	dev.Warn("Global logger requested before initialization; using fallback.")
	return dev.Named("fallback")
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	l := current.Load()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !unsyncable(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// unsyncable matches the errors terminals and pipes return for fsync.
func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP) ||
		strings.Contains(err.Error(), "sync /dev/std")
}
