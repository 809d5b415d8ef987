package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "IPPOWER_LOG_LEVEL"

// maxBodyLog caps how much of a device response body is logged
const maxBodyLog = 512

// Initialize creates a new logger with the specified level.
// If level is empty, it checks IPPOWER_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		SetLogger(zap.NewNop())
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(built)

	return nil
}

// InitializeFromEnv initializes the logger from the IPPOWER_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		// Silent until initialized, so library use never prints unexpectedly
		return zap.NewNop()
	}
	return l
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogDeviceRequest logs an outbound request to the power strip.
// path must not contain credentials.
func LogDeviceRequest(address, op, path string) {
	Debug("Device request",
		zap.String("address", address),
		zap.String("op", op),
		zap.String("path", path),
	)
}

// LogDeviceResponse logs the status and (truncated) body of a device response
func LogDeviceResponse(address, op string, statusCode int, body []byte) {
	Debug("Device response",
		zap.String("address", address),
		zap.String("op", op),
		zap.Int("status_code", statusCode),
		zap.Int("length", len(body)),
		zap.String("body", truncate(body)),
	)
}

// LogStateChange logs a socket whose cached power or name changed
func LogStateChange(socket int, name, oldPower, newPower string) {
	Info("Socket state changed",
		zap.Int("socket", socket),
		zap.String("name", name),
		zap.String("from", oldPower),
		zap.String("to", newPower),
	)
}

// LogHTTPRequest logs a request served by the API
func LogHTTPRequest(remoteAddr, method, path string, statusCode int) {
	Info("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
	)
}

func truncate(body []byte) string {
	if len(body) > maxBodyLog {
		return string(body[:maxBodyLog]) + "..."
	}
	return string(body)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
