// SPDX-License-Identifier: MIT
package validate

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevels are the levels accepted in configuration. zerolog knows more
// (trace, fatal, panic, disabled), but those are not operator settings.
var LogLevels = []zerolog.Level{
	zerolog.DebugLevel,
	zerolog.InfoLevel,
	zerolog.WarnLevel,
	zerolog.ErrorLevel,
}

// ParseLogLevel maps a configured level name, case-insensitively, to its
// zerolog level.
func ParseLogLevel(s string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err == nil && s != "" {
		for _, allowed := range LogLevels {
			if lvl == allowed {
				return lvl, nil
			}
		}
	}
	return zerolog.NoLevel, Error{
		Field:   "log.level",
		Message: fmt.Sprintf("invalid log level %q (must be: debug, info, warn, error)", s),
		Value:   s,
	}
}

// LogLevel validates a configured log level name.
func (v *Validator) LogLevel(field, level string) {
	if _, err := ParseLogLevel(level); err != nil {
		v.AddError(field, "invalid log level (must be: debug, info, warn, error)", level)
	}
}
