// Package logging provides category-gated structured logging for the kernel.
// Every component logs through a Category so operators can enable or silence
// one subsystem (the vault, the evolution pipeline, the heartbeat) without
// touching the rest. Categories are gated by the category list passed to
// Initialize; everything flows to a single zap.Logger core underneath.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log line.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategoryVault        Category = "vault"
	CategoryStore        Category = "store"
	CategoryGovernor     Category = "governor"
	CategoryManifest     Category = "manifest"
	CategoryRuntime      Category = "runtime"
	CategoryOrchestrator Category = "orchestrator"
	CategoryHeartbeat    Category = "heartbeat"
	CategoryEvolution    Category = "evolution"
	CategoryAstro        Category = "astro"
	CategoryDaily        Category = "daily"
	CategoryCollab       Category = "collab"
)

var (
	mu          sync.RWMutex
	base        *zap.Logger
	enabled     = map[Category]bool{}
	allEnabled  = true // when no explicit category list is configured, everything logs
	initialized bool
)

// Initialize wires the package-level zap core. jsonFormat selects a
// structured JSON encoder (for downstream log shipping); otherwise a
// human-readable console encoder is used. categories, when non-empty,
// restricts logging to the named subsystems.
func Initialize(debug bool, jsonFormat bool, categories []string) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonFormat {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	base = zap.New(core)

	if len(categories) > 0 {
		allEnabled = false
		enabled = make(map[Category]bool, len(categories))
		for _, c := range categories {
			enabled[Category(c)] = true
		}
	} else {
		allEnabled = true
		enabled = map[Category]bool{}
	}

	initialized = true
	return nil
}

func ensure() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		return zap.NewNop()
	}
	return base
}

func gated(cat Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		return false
	}
	if allEnabled {
		return true
	}
	return enabled[cat]
}

// Logger is a thin per-category wrapper over the shared zap core.
type Logger struct {
	category Category
}

// Get returns the logger for a category. Safe to call before Initialize;
// it then writes to a no-op sink.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

func (l *Logger) with() *zap.Logger {
	return ensure().With(zap.String("category", string(l.category)))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if gated(l.category) {
		l.with().Debug(msg, fields...)
	}
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if gated(l.category) {
		l.with().Info(msg, fields...)
	}
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if gated(l.category) {
		l.with().Warn(msg, fields...)
	}
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if gated(l.category) {
		l.with().Error(msg, fields...)
	}
}

// Infof/Errorf give printf-style callers (much of the ported orchestrator
// code) a familiar entry point without pulling zap.Field construction into
// every call site.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Boot logs unconditionally at info level during startup, whatever category
// list Initialize was given — mirrors the teacher's boot-phase logging
// helpers that run ahead of full config load. Before Initialize it writes
// to the same no-op sink as every other logger.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).with().Info(fmt.Sprintf(format, args...))
}

func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).with().Error(fmt.Sprintf(format, args...))
}
