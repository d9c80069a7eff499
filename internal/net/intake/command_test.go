package intake

import (
	"testing"
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/proto"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
)

type fakeQueue struct {
	enqueueOK     bool
	enqueueReason string
	commands      []sim.Command
}

func (f *fakeQueue) Enqueue(cmd sim.Command) (bool, string) {
	f.commands = append(f.commands, cmd)
	if f.enqueueOK {
		return true, ""
	}
	if f.enqueueReason == "" {
		f.enqueueReason = sim.CommandRejectQueueFull
	}
	return false, f.enqueueReason
}

func TestStageClientCommandAcceptsScrub(t *testing.T) {
	queue := &fakeQueue{enqueueOK: true}
	issuedAt := time.Unix(100, 0)
	ctx := CommandContext{
		Queue: queue,
		Tick:  func() uint64 { return 42 },
		Now:   func() time.Time { return issuedAt },
	}
	millis := int64(-500)

	cmd, ok, reason := StageClientCommand(ctx, "console-1", proto.ClientMessage{Type: proto.TypeScrubBy, Millis: &millis})
	if !ok {
		t.Fatalf("expected command to be accepted, got reason %q", reason)
	}
	if cmd.ActorID != "console-1" {
		t.Fatalf("expected actor console-1, got %q", cmd.ActorID)
	}
	if cmd.OriginTick != 42 {
		t.Fatalf("expected origin tick 42, got %d", cmd.OriginTick)
	}
	if !cmd.IssuedAt.Equal(issuedAt) {
		t.Fatalf("expected issuedAt %v, got %v", issuedAt, cmd.IssuedAt)
	}
	if cmd.ID == "" {
		t.Fatalf("expected a correlation id")
	}
	if len(queue.commands) != 1 || queue.commands[0].Scrub.Millis != -500 {
		t.Fatalf("expected staged scrub command, got %+v", queue.commands)
	}
}

func TestStageClientCommandRejectsInvalidMessage(t *testing.T) {
	queue := &fakeQueue{enqueueOK: true}
	_, ok, reason := StageClientCommand(CommandContext{Queue: queue}, "console-1", proto.ClientMessage{Type: proto.TypeScrubTo})
	if ok {
		t.Fatalf("expected scrub without offset to be rejected")
	}
	if reason != sim.CommandRejectInvalid {
		t.Fatalf("expected invalid reason, got %q", reason)
	}
	if len(queue.commands) != 0 {
		t.Fatalf("expected nothing staged, got %d", len(queue.commands))
	}
}

func TestStageClientCommandPropagatesQueueReason(t *testing.T) {
	queue := &fakeQueue{}
	_, ok, reason := StageClientCommand(CommandContext{Queue: queue}, "console-1", proto.ClientMessage{Type: proto.TypeCommit})
	if ok {
		t.Fatalf("expected full queue to reject")
	}
	if reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected queue full reason, got %q", reason)
	}
}

func TestStageClientCommandWithoutQueue(t *testing.T) {
	_, ok, reason := StageClientCommand(CommandContext{}, "console-1", proto.ClientMessage{Type: proto.TypeCancel})
	if ok || reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected rejection without a queue, got ok=%v reason=%q", ok, reason)
	}
}
