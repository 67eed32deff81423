// Package safego launches background goroutines that recover from panics.
package safego

import "log/slog"

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with logger
// instead of crashing the process.
func Go(logger *slog.Logger, fn func()) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
