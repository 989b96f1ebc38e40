package asyncredis

import (
	"fmt"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerName is the name of the package logger in the dragonboat logger registry.
const LoggerName = "asyncredis"

var plog = logger.GetLogger(LoggerName)

// ParseLogLevel converts a level name (debug, info, warn, error) to a logger level.
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
}

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logger.LogLevel) {
	plog.SetLevel(level)
}
