package telemetry

import (
	"github.com/sirupsen/logrus"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

// Logger is the printf-style sink for operator diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function to Logger. A nil func discards the line.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// Discard drops every line.
var Discard Logger = LoggerFunc(nil)

// WrapLogger routes Printf lines to logger at info level. Fields already bound
// to an entry (component, client id) are kept.
func WrapLogger(logger logrus.FieldLogger) Logger {
	if logger == nil {
		return Discard
	}
	return LoggerFunc(logger.Infof)
}

// Metrics receives counter increments and gauge values keyed by metric name.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

var _ Metrics = (*logging.Metrics)(nil)

// WrapMetrics exposes the in-process table as Metrics. A nil table is inert.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return metrics
}

// Fanout forwards every update to each non-nil Metrics in order.
func Fanout(targets ...Metrics) Metrics {
	kept := make(multiMetrics, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			kept = append(kept, target)
		}
	}
	return kept
}

type multiMetrics []Metrics

func (m multiMetrics) Add(key string, delta uint64) {
	for _, target := range m {
		target.Add(key, delta)
	}
}

func (m multiMetrics) Store(key string, value uint64) {
	for _, target := range m {
		target.Store(key, value)
	}
}
