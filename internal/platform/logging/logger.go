package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/janisto/chatmate/internal/platform/timeutil"
)

// Options shape the process logger. The zero Level is Info.
type Options struct {
	Level   zapcore.Level
	Service string
	Version string
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	initErr error
	opts    = Options{Service: "chatmate", Version: "dev"}
)

// severities maps zap levels to Cloud Logging severity names.
var severities = map[zapcore.Level]string{
	zapcore.DebugLevel:  "DEBUG",
	zapcore.InfoLevel:   "INFO",
	zapcore.WarnLevel:   "WARNING",
	zapcore.ErrorLevel:  "ERROR",
	zapcore.DPanicLevel: "CRITICAL",
	zapcore.PanicLevel:  "ALERT",
	zapcore.FatalLevel:  "EMERGENCY",
}

func encodeSeverity(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s, ok := severities[level]
	if !ok {
		s = "DEFAULT"
	}
	enc.AppendString(s)
}

func encodeTimeMicros(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(timeutil.RFC3339Micros))
}

// build returns a JSON logger on stdout in Cloud Logging's field layout. Every
// entry carries serviceContext so Error Reporting groups by release.
func build(o Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(o.Level)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = encodeTimeMicros
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeLevel = encodeSeverity
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.CallerKey = "caller"

	return cfg.Build(zap.AddCaller(), zap.Fields(
		zap.Dict("serviceContext", zap.String("service", o.Service), zap.String("version", o.Version)),
	))
}

// Configure replaces the process logger. Loggers already attached to request
// contexts keep the previous core.
func Configure(o Options) error {
	l, err := build(o)
	mu.Lock()
	defer mu.Unlock()
	opts, initErr = o, err
	if err != nil {
		base = zap.NewNop()
		return err
	}
	base = l
	return nil
}

// Logger returns the process-wide logger, building it with the current
// options on first use.
func Logger() *zap.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base, initErr = build(opts)
		if initErr != nil {
			base = zap.NewNop()
		}
	}
	return base
}

// Sync flushes buffered log entries. Call during shutdown.
func Sync() error {
	return Logger().Sync()
}

// Err reports the last build failure, if any.
func Err() error {
	Logger()
	mu.RLock()
	defer mu.RUnlock()
	return initErr
}
