// Package logging provides structured logging for the ippower engine.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used throughout the engine: device requests, poll cycles, state
// changes and the HTTP API.
//
// # Log Levels
//
//   - Debug: device requests and raw response bodies, dropped ticks
//   - Info:  configuration, socket state changes, commands
//   - Warn:  failed polls, device unreachable
//   - Error: startup failures, unexpected errors
//
// # Configuration
//
// Initialize logging once at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given the IPPOWER_LOG_LEVEL environment variable is used.
// If that is unset too, logging is silent so CLI output stays clean.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
