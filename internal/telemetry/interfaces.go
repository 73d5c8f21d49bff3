// Package telemetry holds the narrow logger and metrics interfaces game and
// transport code depend on, plus adapters onto the logging package.
package telemetry

import (
	"log"

	"github.com/david-fong/capswalk-sub001/logging"
)

// Logger is the printf-style logger used for operator messages that are not
// structured events.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger for code that needs a *log.Logger,
// such as http.Server.ErrorLog.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// Metrics is the counter surface the game, hub and sessions write to.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// Reader is implemented by metrics that can report their current values.
type Reader interface {
	Snapshot() map[string]uint64
}

// WrapMetrics adapts the logging metrics registry into the Metrics interface.
// A nil registry yields a no-op adapter.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

func (m *metricsAdapter) Snapshot() map[string]uint64 {
	if m == nil || m.metrics == nil {
		return map[string]uint64{}
	}
	return m.metrics.Snapshot()
}

// Snapshot reads metrics when they support it and returns an empty map
// otherwise.
func Snapshot(metrics Metrics) map[string]uint64 {
	if reader, ok := metrics.(Reader); ok {
		return reader.Snapshot()
	}
	return map[string]uint64{}
}

// JournalDrops counts journal drops against metrics. It satisfies
// journal.Telemetry.
type JournalDrops struct {
	Metrics Metrics
}

// RecordJournalDrop increments the named drop counter.
func (j JournalDrops) RecordJournalDrop(metric string) {
	if j.Metrics == nil || metric == "" {
		return
	}
	j.Metrics.Add(metric, 1)
}
