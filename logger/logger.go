// Package logger - Process wide zap logger used by engines, models and commands.
package logger

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the logger configuration.
type Mode string

const (
	// ModeProduction writes JSON lines at info level.
	ModeProduction Mode = "production"
	// ModeDevelopment writes human readable console output at debug level.
	ModeDevelopment Mode = "development"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Init builds a logger for mode and installs it as the package and zap global logger.
//
// Arguments:
//   - mode: The logger configuration. An empty mode means production.
//
// Returns:
//   - error: An error if mode is unknown or the logger cannot be built.
func Init(mode Mode) error {
	var cfg zap.Config
	switch mode {
	case ModeProduction, "":
		cfg = zap.NewProductionConfig()
	case ModeDevelopment:
		cfg = zap.NewDevelopmentConfig()
	default:
		return errors.Errorf("unknown log mode %q", mode)
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	Set(l)
	return nil
}

// Set replaces the package logger, flushing the previous one.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log returns the package logger, or zap's global (a no-op until Init) before initialization.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns the sugared form of Log.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
