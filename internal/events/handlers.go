package events

import (
	"go.uber.org/zap"
)

// LogHandler returns a handler that logs events through logger.
// Failure events are logged at warn level, everything else at info.
func LogHandler(logger *zap.Logger) Handler {
	return func(e Event) {
		fields := []zap.Field{zap.String("event", string(e.Type))}
		if e.Project != "" {
			fields = append(fields, zap.String("project", e.Project))
		}
		if e.Payload != nil {
			fields = append(fields, zap.Any("payload", e.Payload))
		}

		if e.IsFailure() {
			msg := e.Error
			if msg == "" {
				msg = string(e.Type)
			}
			logger.Warn(msg, fields...)
			return
		}
		logger.Info("event", fields...)
	}
}

// Recorder is a sink for persisted events.
type Recorder interface {
	AppendEvent(e Event) error
}

// StoreHandler returns a handler that persists every event. Persistence
// failures are reported through onError and never stop dispatch.
func StoreHandler(rec Recorder, onError func(error)) Handler {
	return func(e Event) {
		if err := rec.AppendEvent(e); err != nil && onError != nil {
			onError(err)
		}
	}
}
