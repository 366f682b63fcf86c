// Package logging builds the zap loggers used across the engine.
package logging

import "go.uber.org/zap"

// New creates a zap.Logger for the environment. "production" gets JSON
// output at info level; anything else gets the development console logger.
func New(env string) *zap.Logger {
	if env == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
