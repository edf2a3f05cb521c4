// SPDX-License-Identifier: MIT

package validate

// LogLevel represents valid log levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// LogLevel validates a log level name.
func (v *Validator) LogLevel(field, level string) {
	if !LogLevel(level).IsValid() {
		v.AddError(field, "invalid log level (must be: trace, debug, info, warn, error)", level)
	}
}
