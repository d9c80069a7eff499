package sim

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

const tracerName = "github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"

// Deps carries shared infrastructure dependencies required by the loop.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	Tracer    trace.Tracer
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = logging.Discard
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(tracerName)
	}
	return d
}
