package simulation

import (
	"context"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

const (
	// EventTickBudgetOverrun is emitted for every tick that ran longer than its budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventTickBudgetAlarm is emitted when a streak of slow ticks makes the loop drop its catch-up backlog.
	EventTickBudgetAlarm logging.EventType = "simulation.tick_budget_alarm"
	// EventCommandRejected is emitted when a staged command is refused.
	EventCommandRejected logging.EventType = "simulation.command_rejected"
)

// TickBudgetPayload describes one slow tick.
type TickBudgetPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// TickBudgetAlarmPayload adds the thresholds that tripped the backlog reset.
type TickBudgetAlarmPayload struct {
	TickBudgetPayload
	ThresholdRatio  float64 `json:"thresholdRatio"`
	ThresholdStreak uint64  `json:"thresholdStreak"`
}

// CommandRejectedPayload names the refused command and why.
type CommandRejectedPayload struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetPayload) {
	logging.Emit(ctx, pub, systemEvent(EventTickBudgetOverrun, logging.SeverityWarn, tick, payload))
}

func TickBudgetAlarm(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetAlarmPayload) {
	logging.Emit(ctx, pub, systemEvent(EventTickBudgetAlarm, logging.SeverityError, tick, payload))
}

// CommandRejected records the command id on the event so sinks can correlate
// it with the ack or reject sent to the client.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, commandID string, payload CommandRejectedPayload) {
	event := systemEvent(EventCommandRejected, logging.SeverityInfo, tick, payload)
	event.CommandID = commandID
	logging.Emit(ctx, pub, event)
}

func systemEvent(eventType logging.EventType, severity logging.Severity, tick uint64, payload any) logging.Event {
	return logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    logging.Loop(),
		Severity: severity,
		Category: logging.CategorySystem,
		Payload:  payload,
	}
}
