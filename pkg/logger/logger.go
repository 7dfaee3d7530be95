package logger

import (
	"go.uber.org/zap"
)

var logger *zap.Logger

// NewLogger builds a zap logger for the given environment. "prod" gets the
// production JSON encoder, "test" the deterministic example logger,
// everything else the development console encoder.
func NewLogger(environment string) (*zap.Logger, error) {
	switch environment {
	case "prod":
		return zap.NewProduction()
	case "test":
		return zap.NewExample(), nil
	default:
		return zap.NewDevelopment()
	}
}

func MustNewLogger(environment string) *zap.Logger {
	return zap.Must(NewLogger(environment))
}

func InitLogger(environment string) (*zap.Logger, error) {
	var err error
	logger, err = NewLogger(environment)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

func GetLogger() *zap.Logger {
	if logger == nil {
		panic("logger not initialized")
	}

	return logger
}
