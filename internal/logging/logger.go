// Package logging wraps zerolog with the defaults the service runs with.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logger type.
type Logger = zerolog.Logger

// Options configures the root logger.
type Options struct {
	Level   string
	Format  string // "json" or "console"
	Service string
	Writer  io.Writer
}

var (
	mu   sync.RWMutex
	root = newLogger(Options{Level: "info"})
)

// Init replaces the root logger. Safe to call more than once; the CLI
// calls it after the config has been loaded.
func Init(opt Options) {
	l := newLogger(opt)
	mu.Lock()
	root = l
	mu.Unlock()
}

func newLogger(opt Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.EqualFold(opt.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	l := ctx.Logger()
	return &l
}

// Get returns the root logger.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child logger with a component field.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	l := zerolog.Nop()
	return &l
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "silent", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Info logs msg with fields on the root logger.
func Info(msg string, fields map[string]any) { Get().Info().Fields(fields).Msg(msg) }

// Error logs msg with fields on the root logger.
func Error(msg string, fields map[string]any) { Get().Error().Fields(fields).Msg(msg) }
