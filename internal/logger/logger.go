// Package logger is a process-wide structured logger that fans each call
// out to the registered backends. Calls before Init are dropped.
package logger

import "sync"

// Backend is a logging destination.
type Backend interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	Fatal(msg string, keyvals ...any)
}

var (
	mu       sync.RWMutex
	backends []Backend
)

// Init replaces the registered backends.
func Init(b ...Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends = b
}

func each(fn func(Backend)) {
	mu.RLock()
	defer mu.RUnlock()
	for _, b := range backends {
		fn(b)
	}
}

// Debug logs at DEBUG level.
func Debug(msg string, keyvals ...any) {
	each(func(b Backend) { b.Debug(msg, keyvals...) })
}

// Info logs at INFO level.
func Info(msg string, keyvals ...any) {
	each(func(b Backend) { b.Info(msg, keyvals...) })
}

// Warn logs at WARN level.
func Warn(msg string, keyvals ...any) {
	each(func(b Backend) { b.Warn(msg, keyvals...) })
}

// Error logs at ERROR level.
func Error(msg string, keyvals ...any) {
	each(func(b Backend) { b.Error(msg, keyvals...) })
}

// Fatal logs at FATAL level; backends terminate the process.
func Fatal(msg string, keyvals ...any) {
	each(func(b Backend) { b.Fatal(msg, keyvals...) })
}
