package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging/simulation"
)

type marker struct {
	x     float64
	alive bool
}

type markerState struct{ X float64 }

func (m *marker) Capture() rewind.Snapshot { return markerState{X: m.x} }

func (m *marker) Restore(s rewind.Snapshot) {
	if state, ok := s.(markerState); ok {
		m.x = state.X
	}
}

func (m *marker) Destroy()   { m.alive = false }
func (m *marker) Resurrect() { m.alive = true }

// driftWorld moves the marker one unit per simulated second.
type driftWorld struct {
	m     *marker
	steps int
}

func (w *driftWorld) Step(dt time.Duration) {
	w.steps++
	w.m.x += dt.Seconds()
}

type loopFixture struct {
	loop     *Loop
	engine   *rewind.Engine
	world    *driftWorld
	recorder *tracetest.SpanRecorder
	tick     uint64
}

func newLoopFixture(t *testing.T, cfg LoopConfig) *loopFixture {
	t.Helper()
	engine, err := rewind.NewEngine(rewind.WithAutoRewindTime(time.Second))
	require.NoError(t, err)
	m := &marker{alive: true}
	engine.Register(m)
	world := &driftWorld{m: m}

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	loop, err := NewLoop(engine, world, NewTimeScale(1), cfg, LoopHooks{}, Deps{Tracer: provider.Tracer("test")})
	require.NoError(t, err)
	return &loopFixture{loop: loop, engine: engine, world: world, recorder: recorder}
}

func (f *loopFixture) advance(dt time.Duration) LoopStepResult {
	f.tick++
	return f.loop.Advance(LoopTickContext{Tick: f.tick, Now: time.Unix(0, 0).Add(time.Duration(f.tick) * dt), Delta: dt})
}

func (f *loopFixture) enqueue(t *testing.T, cmd Command) {
	t.Helper()
	ok, reason := f.loop.Enqueue(cmd)
	require.True(t, ok, reason)
}

func TestNewLoopValidatesInputs(t *testing.T) {
	_, err := NewLoop(nil, &driftWorld{}, nil, LoopConfig{}, LoopHooks{}, Deps{})
	require.ErrorIs(t, err, ErrMissingEngine)

	engine, err := rewind.NewEngine()
	require.NoError(t, err)
	_, err = NewLoop(engine, nil, nil, LoopConfig{}, LoopHooks{}, Deps{})
	require.ErrorIs(t, err, ErrMissingWorld)
}

func TestLoopStepsWorldOnlyWhileRecording(t *testing.T) {
	f := newLoopFixture(t, DefaultLoopConfig())
	for i := 0; i < 4; i++ {
		result := f.advance(500 * time.Millisecond)
		require.True(t, result.Stepped)
	}
	require.Equal(t, 4, f.world.steps)

	f.enqueue(t, NewCommand(CommandBeginPreview))
	result := f.advance(500 * time.Millisecond)
	require.False(t, result.Stepped)
	require.Equal(t, 4, f.world.steps)
	require.True(t, result.Status.Previewing)
	require.Equal(t, result.Status, f.loop.Status())
}

func TestLoopCommitsScrubbedPreview(t *testing.T) {
	f := newLoopFixture(t, DefaultLoopConfig())
	for i := 0; i < 5; i++ {
		f.advance(500 * time.Millisecond)
	}
	// Captures at 0.5s..2.5s, with the marker position equal to the timestamp.
	require.Equal(t, 2.5, f.world.m.x)

	f.enqueue(t, NewCommand(CommandBeginPreview))
	scrub := NewCommand(CommandScrubTo)
	scrub.Scrub = &ScrubCommand{Millis: 1000}
	f.enqueue(t, scrub)
	f.enqueue(t, NewCommand(CommandCommit))

	// The commit is applied by the engine tick of the same loop step.
	result := f.advance(500 * time.Millisecond)
	require.Empty(t, result.Rejected)
	require.False(t, result.Stepped)
	require.True(t, result.Report.Committed)
	require.Equal(t, 1.5, f.world.m.x)
	require.Equal(t, "recording", result.Status.Mode)
	require.Equal(t, int64(1500), result.Status.NowMillis)

	result = f.advance(500 * time.Millisecond)
	require.True(t, result.Stepped)
	require.Equal(t, int64(2000), result.Status.NowMillis)

	var commitSpans int
	for _, span := range f.recorder.Ended() {
		if span.Name() == "rewind.commit" {
			commitSpans++
		}
	}
	require.Equal(t, 1, commitSpans)
}

func TestLoopRejectsCommandsInWrongMode(t *testing.T) {
	var dropped []string
	f := newLoopFixture(t, DefaultLoopConfig())
	var events []logging.Event
	f.loop.hooks.OnCommandDrop = func(reason string, _ Command) { dropped = append(dropped, reason) }
	f.loop.deps.Publisher = logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		events = append(events, event)
	})
	f.advance(100 * time.Millisecond)

	commit := NewCommand(CommandCommit)
	f.enqueue(t, commit)
	f.enqueue(t, NewCommand(CommandScrubBy))
	result := f.advance(100 * time.Millisecond)

	require.Len(t, result.Rejected, 2)
	require.Equal(t, CommandRejectMode, result.Rejected[0].Reason)
	require.Equal(t, CommandRejectInvalid, result.Rejected[1].Reason)
	require.Equal(t, []string{CommandRejectMode, CommandRejectInvalid}, dropped)

	require.Len(t, events, 2)
	require.Equal(t, simulation.EventCommandRejected, events[0].Type)
	require.Equal(t, commit.ID, events[0].CommandID)
	require.Equal(t, uint64(2), events[0].Tick)
	require.Equal(t, simulation.CommandRejectedPayload{Type: "Commit", Reason: CommandRejectMode}, events[0].Payload)
}

func TestLoopHeldRewindScrubsAndAutoCommits(t *testing.T) {
	cfg := DefaultLoopConfig()
	cfg.ScrubRate = 4
	f := newLoopFixture(t, cfg)
	for i := 0; i < 11; i++ {
		f.advance(100 * time.Millisecond)
	}
	require.Equal(t, time.Second, f.engine.AvailableRewindTime())

	f.enqueue(t, NewCommand(CommandHoldRewind))
	result := f.advance(100 * time.Millisecond)
	require.True(t, result.Status.Holding)
	require.Equal(t, int64(400), result.Status.PreviewRewindMillis)

	f.advance(100 * time.Millisecond)
	result = f.advance(100 * time.Millisecond)
	require.True(t, result.Status.AutoRewinding, "held input reaches the oldest instant")

	committed := 0
	for i := 0; i < 12; i++ {
		if f.advance(100 * time.Millisecond).Report.Committed {
			committed++
		}
	}
	require.Equal(t, 1, committed)
	require.False(t, f.loop.Status().Holding)
	require.Equal(t, rewind.ModeRecording, f.engine.Mode())
}

func TestLoopReleaseCancelsWhenAsked(t *testing.T) {
	f := newLoopFixture(t, DefaultLoopConfig())
	for i := 0; i < 6; i++ {
		f.advance(100 * time.Millisecond)
	}
	present := f.world.m.x

	f.enqueue(t, NewCommand(CommandHoldRewind))
	f.advance(100 * time.Millisecond)
	require.NotEqual(t, present, f.world.m.x)

	release := NewCommand(CommandReleaseRewind)
	release.Release = &ReleaseCommand{Cancel: true}
	f.enqueue(t, release)
	result := f.advance(100 * time.Millisecond)

	require.Empty(t, result.Rejected)
	require.False(t, result.Status.Previewing)
	require.True(t, result.Stepped)
	require.InDelta(t, present+0.1, f.world.m.x, 1e-9)
}

func TestLoopSetTimeScaleSlowsRecording(t *testing.T) {
	f := newLoopFixture(t, DefaultLoopConfig())
	cmd := NewCommand(CommandSetTimeScale)
	cmd.TimeScale = &TimeScaleCommand{Scale: 0.25}
	f.enqueue(t, cmd)

	result := f.advance(time.Second)
	require.Equal(t, 250*time.Millisecond, result.Scaled)
	require.Equal(t, 0.25, result.Status.TimeScale)
	require.Equal(t, int64(250), result.Status.NowMillis)
}

func TestLoopEnqueueReportsFullBuffer(t *testing.T) {
	cfg := DefaultLoopConfig()
	cfg.CommandCapacity = 1
	f := newLoopFixture(t, cfg)

	ok, _ := f.loop.Enqueue(NewCommand(CommandBeginPreview))
	require.True(t, ok)
	ok, reason := f.loop.Enqueue(NewCommand(CommandCancel))
	require.False(t, ok)
	require.Equal(t, CommandRejectQueueFull, reason)
	require.Equal(t, 1, f.loop.Pending())
}

func TestLoopRunStopsOnSignal(t *testing.T) {
	cfg := DefaultLoopConfig()
	cfg.TickRate = 200
	ticks := make(chan LoopStepResult, 64)
	f := newLoopFixture(t, cfg)
	f.loop.hooks.AfterStep = func(result LoopStepResult) {
		select {
		case ticks <- result:
		default:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		f.loop.Run(stop)
		close(done)
	}()

	select {
	case result := <-ticks:
		require.Equal(t, uint64(1), result.Tick)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the loop to tick")
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return after stop")
	}
}

func TestScrubCommandDurationSaturates(t *testing.T) {
	cases := []struct {
		millis int64
		want   time.Duration
	}{
		{millis: -250, want: -250 * time.Millisecond},
		{millis: 10_000_000_000_000, want: time.Duration(math.MaxInt64)},
		{millis: -10_000_000_000_000, want: time.Duration(math.MinInt64)},
		{millis: math.MaxInt64, want: time.Duration(math.MaxInt64)},
	}
	for _, tc := range cases {
		if got := (ScrubCommand{Millis: tc.millis}).Duration(); got != tc.want {
			t.Fatalf("expected %d ms to convert to %s, got %s", tc.millis, tc.want, got)
		}
	}
}

func TestLoopHugeForwardScrubStopsAtPresent(t *testing.T) {
	f := newLoopFixture(t, DefaultLoopConfig())
	for i := 0; i < 6; i++ {
		f.advance(500 * time.Millisecond)
	}
	f.enqueue(t, NewCommand(CommandBeginPreview))
	back := NewCommand(CommandScrubBy)
	back.Scrub = &ScrubCommand{Millis: -1000}
	f.enqueue(t, back)
	result := f.advance(500 * time.Millisecond)
	require.Equal(t, int64(1000), result.Status.PreviewRewindMillis)

	forward := NewCommand(CommandScrubBy)
	forward.Scrub = &ScrubCommand{Millis: 10_000_000_000_000}
	f.enqueue(t, forward)
	result = f.advance(500 * time.Millisecond)

	require.Empty(t, result.Rejected)
	require.False(t, result.Status.AutoRewinding)
	require.Zero(t, result.Status.PreviewRewindMillis)
	require.False(t, result.Report.Committed)
	require.Equal(t, 3.0, f.world.m.x)
}

func TestLoopPausedCountdownWaitsForRelease(t *testing.T) {
	cfg := DefaultLoopConfig()
	cfg.ScrubRate = 20
	f := newLoopFixture(t, cfg)
	for i := 0; i < 11; i++ {
		f.advance(100 * time.Millisecond)
	}

	pause := NewCommand(CommandSetTimeScale)
	pause.TimeScale = &TimeScaleCommand{Scale: 0}
	f.enqueue(t, pause)
	f.enqueue(t, NewCommand(CommandHoldRewind))
	result := f.advance(100 * time.Millisecond)
	require.True(t, result.Status.AutoRewinding)
	remaining := result.Status.AutoRewindRemaining

	for i := 0; i < 50; i++ {
		result = f.advance(100 * time.Millisecond)
		require.False(t, result.Report.Committed)
	}
	require.True(t, result.Status.AutoRewinding)
	require.Equal(t, remaining, result.Status.AutoRewindRemaining)

	f.enqueue(t, NewCommand(CommandReleaseRewind))
	result = f.advance(100 * time.Millisecond)
	require.Empty(t, result.Rejected)
	require.True(t, result.Report.Committed)
	require.False(t, result.Status.Holding)
	require.Equal(t, "recording", result.Status.Mode)
}
