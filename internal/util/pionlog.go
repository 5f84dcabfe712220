package util

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/pterm/pterm"
)

// pionLogger forwards pion's internal log lines into the pterm logger,
// prefixed with the pion scope (ice, dtls, pc, ...).
type pionLogger struct {
	scope string
}

func (l *pionLogger) line(msg string) string {
	return "[pion/" + l.scope + "] " + msg
}

// Trace and debug output from pion is very chatty; it is only forwarded
// when debug logging is enabled.

func (l *pionLogger) Trace(msg string) {
	if DebugEnabled() {
		pterm.DefaultLogger.Trace(l.line(msg))
	}
}

func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.Trace(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) {
	if DebugEnabled() {
		pterm.DefaultLogger.Debug(l.line(msg))
	}
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) {
	if DebugEnabled() {
		pterm.DefaultLogger.Info(l.line(msg))
	}
}

func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string) {
	pterm.DefaultLogger.Warn(l.line(msg))
}

func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Error(msg string) {
	pterm.DefaultLogger.Error(l.line(msg))
}

func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

type pionLoggerFactory struct{}

func (pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope}
}

// NewPionLoggerFactory returns a logging.LoggerFactory that routes pion's
// logs through the same pterm logger as the rest of the program.
func NewPionLoggerFactory() logging.LoggerFactory {
	return pionLoggerFactory{}
}
