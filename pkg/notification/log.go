package notification

import "github.com/raykavin/quantcore/pkg/logger"

// Log is the fallback notifier used when no external channel is
// configured. Messages land in the structured log.
type Log struct {
	log logger.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

// Notify implements core.Notifier.
func (l *Log) Notify(message string) {
	l.log.Info(message)
}

// OnError implements core.Notifier.
func (l *Log) OnError(err error) {
	l.log.WithError(err).Error("notification error")
}
