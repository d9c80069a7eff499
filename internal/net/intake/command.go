package intake

import (
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/proto"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
)

// Queue accepts commands for the next simulation tick. *sim.Loop satisfies it.
type Queue interface {
	Enqueue(cmd sim.Command) (bool, string)
}

type CommandContext struct {
	Queue Queue
	Tick  func() uint64
	Now   func() time.Time
}

// StageClientCommand validates a control message and stages the resulting
// command. It returns the staged command or the rejection reason.
func StageClientCommand(ctx CommandContext, actorID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(msg)
	if !ok {
		return zero, false, sim.CommandRejectInvalid
	}

	stamped := sim.NewCommand(command.Type)
	command.ID = stamped.ID
	command.ActorID = actorID
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Queue == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Queue.Enqueue(command); !ok {
		return zero, false, reason
	}

	return command, true, ""
}
