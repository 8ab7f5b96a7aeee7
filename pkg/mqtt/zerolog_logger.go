package mqtt

import "github.com/rs/zerolog"

// ZerologLogger forwards client log output to a zerolog.Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps logger as LogCallbacks.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// Log implements LogCallbacks. Fatal is written at error level; a library must
// not terminate the process.
func (z *ZerologLogger) Log(level LogLevel, text string) {
	var event *zerolog.Event
	switch level {
	case LogTrace:
		event = z.logger.Trace()
	case LogDebug:
		event = z.logger.Debug()
	case LogInfo:
		event = z.logger.Info()
	case LogWarning:
		event = z.logger.Warn()
	case LogFatal:
		event = z.logger.Error().Bool("fatal", true)
	default:
		event = z.logger.Error()
	}
	event.Str("component", "imqtt").Msg(text)
}
