// Package observability provides the process loggers and Prometheus metrics.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is used by commands for human-facing output on stderr.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the coordinator service and minion loops.
	ServerLogger = zap.NewNop()
)

// InitCLILogger configures CLILogger as a console logger.
//
// verbose lowers the level to debug.
func InitCLILogger(name string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := NewLogger(name, level, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize CLI logger: %v\n", err)
		return
	}
	CLILogger = logger
}

// InitServerLogger configures ServerLogger with the given level and format.
func InitServerLogger(name, level string, json bool) error {
	logger, err := NewLogger(name, level, json)
	if err != nil {
		return err
	}
	ServerLogger = logger
	return nil
}

// NewLogger builds a named zap logger writing to stderr.
//
// level is one of debug, info, warn, error. json selects structured output;
// otherwise a console encoder is used.
func NewLogger(name, level string, json bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core).Named(name), nil
}

// ParseLevel converts a level name into a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
