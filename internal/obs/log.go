package obs

import (
	"strings"

	"github.com/yanun0323/logs"
)

// ParseLevel maps a level name to a logs level; unknown names fall back to info.
func ParseLevel(name string) logs.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logs.LevelDebug
	case "warn", "warning":
		return logs.LevelWarn
	case "error":
		return logs.LevelError
	default:
		return logs.LevelInfo
	}
}

// NewLogger builds a root logger. A non-empty component tags it; components
// that receive the root logger tag themselves through Component, so a logger
// shared with components should be built with an empty component.
func NewLogger(level, component string) logs.Logger {
	log := logs.New(ParseLevel(level))
	if component == "" {
		return log
	}
	return log.With("component", component)
}

// Component tags log with the component name, creating an info logger when log is nil.
func Component(log logs.Logger, component string) logs.Logger {
	if log == nil {
		return NewLogger("info", component)
	}
	return log.With("component", component)
}
