package shared

import (
	"go.uber.org/zap"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string // name reported in the "service" field, e.g. "cds-client"
	Development bool   // true for console logging with debug level
	Silent      bool   // true to discard all output (library embedding, tests)
}

// Logger wraps zap.Logger with additional context
type Logger struct {
	*zap.Logger
	serviceName string
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if config.Silent {
		zapLogger = zap.NewNop()
	} else if config.Development {
		// Development mode: console logging with debug level
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapLogger, err = zapConfig.Build()
	} else {
		// Production mode: structured JSON logging
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = zapConfig.Build()
	}

	if err != nil {
		return nil, err
	}

	if !config.Silent {
		zapLogger = zapLogger.With(zap.String("service", config.ServiceName))
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
	}, nil
}

// NewLoggerFromEnv creates a logger using environment variables
func NewLoggerFromEnv(serviceName string) (*Logger, error) {
	config := LoggerConfig{
		ServiceName: serviceName,
		Development: GetEnvOrDefault("DEVELOPMENT", "false") == "true",
		Silent:      GetEnvOrDefault("SILENT", "false") == "true",
	}
	return NewLogger(config)
}

// NewNopLogger returns a logger that discards everything. Useful as a
// default when the caller does not supply one.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithCall returns a child logger tagged with a per-call correlation id
func (l *Logger) WithCall(callID string) *zap.Logger {
	if callID == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("call_id", callID))
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.With(zap.String("component", name)),
		serviceName: l.serviceName,
	}
}
