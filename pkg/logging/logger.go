package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger for the given environment.
// "local" and "dev" get human-readable development output; everything else
// gets production JSON at info level.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)

	switch env {
	case "local", "dev":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
