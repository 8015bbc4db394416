// Package logging - Structured logging helpers shared by the commands and services.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production ready structured logger.
//
// Arguments:
//   - debug: Lowers the level to debug and switches to the console encoder.
//
// Returns:
//   - *zap.Logger: The configured logger.
//   - error: An error if the logger cannot be built.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
	}
	return cfg.Build()
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String(OperationKey, operation)}
	if requestID != "" {
		fields = append(fields, zap.String(RequestIDKey, requestID))
	}
	return logger.With(fields...)
}
