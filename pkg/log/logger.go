package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var zapLevels = map[LogLevel]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
	LevelFatal: zapcore.FatalLevel,
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger is a printf-style facade over a zap sugared logger.
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// NewLogger builds a logger writing to stdout. format is "json" or "console".
func NewLogger(level LogLevel, format string) *Logger {
	atomic := zap.NewAtomicLevelAt(zapLevels[level])

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), atomic)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{level: atomic, sugar: z.Sugar()}
}

// NewWithCore wraps an existing zap core. Used by tests to capture output.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
		sugar: zap.New(core, zap.AddCallerSkip(1)).Sugar(),
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevels[level])
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// With returns a child logger carrying structured fields on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{level: l.level, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger replaces the global logger.
func InitLogger(level LogLevel, format string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(level, format)
}

// SetLogger installs l as the global logger.
func SetLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, "console")
	}
	return globalLogger
}

// Convenience functions
func Debug(format string, args ...interface{}) {
	GetLogger().sugar.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().sugar.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().sugar.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().sugar.Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	GetLogger().sugar.Fatalf(format, args...)
}

func With(keysAndValues ...interface{}) *Logger {
	return GetLogger().With(keysAndValues...)
}

// Sync flushes buffered entries of the global logger.
func Sync() {
	GetLogger().Sync()
}
