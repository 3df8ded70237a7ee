// Package logging builds the logr.Logger shared by every dtail component,
// backed by zap through controller-runtime's zap adapter.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// New returns a logger configured with the given level string.
func New(level string) (logr.Logger, error) {
	lower := strings.ToLower(strings.TrimSpace(level))
	opts := crzap.Options{}
	var zapLevel zapcore.Level
	switch lower {
	case "debug":
		opts.Development = true
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return logr.Logger{}, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts.Level = &atomic
	return crzap.New(crzap.UseFlagOptions(&opts)), nil
}

// Discard returns a logger that drops everything. Used by tests and as the
// default when a caller passes no logger.
func Discard() logr.Logger {
	return logr.Discard()
}
