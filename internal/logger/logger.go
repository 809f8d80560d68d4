// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Запись буферизуется (BufferedWriteSyncer), чтобы не блокировать горячие пути;
// перед выходом процесса вызывайте Sync. Поддерживается логирование времени выполнения функций.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	bufferSize    = 256 * 1024
	flushInterval = time.Second
	slowThreshold = 100 * time.Millisecond
)

var (
	mu     sync.RWMutex
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	syncer *zapcore.BufferedWriteSyncer
	once   sync.Once
)

func levelFromEnv() zapcore.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newCore(ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
}

func initLogger() {
	level.SetLevel(levelFromEnv())
	syncer = &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(os.Stdout),
		Size:          bufferSize,
		FlushInterval: flushInterval,
	}
	base = zap.New(newCore(syncer), zap.AddCaller(), zap.AddCallerSkip(1))
	sugar = base.Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(initLogger)
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "api", "push").
func SetPrefix(p string) {
	once.Do(initLogger)
	mu.Lock()
	defer mu.Unlock()
	sugar = base.Named(p).Sugar()
}

// SetLevel переключает уровень ("debug", "info", "error") без пересоздания логгера.
func SetLevel(l string) {
	once.Do(initLogger)
	switch l {
	case "debug", "trace":
		level.SetLevel(zapcore.DebugLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Use подменяет ядро (тесты пишут в zaptest/observer).
func Use(l *zap.Logger) {
	once.Do(initLogger)
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
}

func Info(v ...any) { get().Info(v...) }

func Infof(format string, v ...any) { get().Infof(format, v...) }

func Debugf(format string, v ...any) { get().Debugf(format, v...) }

func Error(v ...any) { get().Error(v...) }

func Errorf(format string, v ...any) { get().Errorf(format, v...) }

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При уровне info логирует только вызовы дольше 100ms; при debug логирует все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= slowThreshold {
		get().Infow(fmt.Sprintf("fn=%s", fn), "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}

// Sync сбрасывает буфер. Вызывается при остановке сервиса.
func Sync() {
	once.Do(initLogger)
	if syncer != nil {
		_ = syncer.Stop()
	}
}
