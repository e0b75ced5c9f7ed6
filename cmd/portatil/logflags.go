package main

import (
	"strings"

	"github.com/pkg/errors"

	"portatil/internal/debug"
)

var componentsByName = map[string]debug.Component{
	"cpu":     debug.ComponentCPU,
	"memory":  debug.ComponentMemory,
	"input":   debug.ComponentInput,
	"video":   debug.ComponentVideo,
	"audio":   debug.ComponentAudio,
	"engine":  debug.ComponentEngine,
	"syscall": debug.ComponentSyscall,
	"loader":  debug.ComponentLoader,
	"kernel":  debug.ComponentKernel,
	"system":  debug.ComponentSystem,
}

var levelsByName = map[string]debug.LogLevel{
	"none":    debug.LogLevelNone,
	"error":   debug.LogLevelError,
	"warning": debug.LogLevelWarning,
	"info":    debug.LogLevelInfo,
	"debug":   debug.LogLevelDebug,
	"trace":   debug.LogLevelTrace,
}

// applyLogFlags parses a comma-separated "component=level,..." spec and
// enables each named component. The logger has no per-component level:
// its single minLevel, shared by all components, is set to the most
// verbose (highest) level named anywhere in the spec.
func applyLogFlags(logger *debug.Logger, spec string) error {
	if spec == "" {
		return nil
	}

	finest := debug.LogLevelNone
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return errors.Errorf("invalid --log entry %q, want component=level", pair)
		}

		component, ok := componentsByName[strings.ToLower(parts[0])]
		if !ok {
			return errors.Errorf("unknown log component %q", parts[0])
		}
		level, ok := levelsByName[strings.ToLower(parts[1])]
		if !ok {
			return errors.Errorf("unknown log level %q", parts[1])
		}

		logger.SetComponentEnabled(component, true)
		if level > finest {
			finest = level
		}
	}

	if finest > debug.LogLevelNone {
		logger.SetMinLevel(finest)
	}

	return nil
}
