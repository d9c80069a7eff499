package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging/simulation"
)

const (
	// CommandRejectQueueFull indicates the command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectMode indicates the engine refused the command in its
	// current playback mode.
	CommandRejectMode = "mode"
	// CommandRejectInvalid indicates a command without its payload.
	CommandRejectInvalid = "invalid"

	// overrunAlarmStreak consecutive overruns at overrunAlarmRatio drop the
	// catch-up backlog.
	overrunAlarmStreak = 8
	overrunAlarmRatio  = 2.0
)

var (
	// ErrMissingEngine indicates NewLoop was invoked without a rewind engine.
	ErrMissingEngine = errors.New("sim: engine is nil")
	// ErrMissingWorld indicates NewLoop was invoked without a world.
	ErrMissingWorld = errors.New("sim: world is nil")
)

// World is the gameplay simulation stepped by the loop while recording.
type World interface {
	Step(dt time.Duration)
}

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	WarningStep     int
	// ScrubRate is how many seconds of history a held rewind covers per
	// wall-clock second.
	ScrubRate float64
}

// DefaultLoopConfig mirrors the values used by cmd/rewindsim.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickRate:        60,
		CatchupMaxTicks: 4,
		CommandCapacity: 256,
		WarningStep:     64,
		ScrubRate:       2,
	}
}

// LoopHooks exposes optional callbacks around each tick.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	OnQueueWarning func(length int)
	OnCommandDrop  func(reason string, cmd Command)
}

// LoopTickContext describes the tick about to run.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta time.Duration
}

// CommandRejection pairs a command with the reason it was not applied.
type CommandRejection struct {
	Command Command
	Reason  string
}

// LoopStepResult reports what a single Advance did.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        time.Duration
	Scaled       time.Duration
	Commands     []Command
	Rejected     []CommandRejection
	Stepped      bool
	Report       rewind.TickReport
	Status       Status
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     time.Duration
}

// Status is the loop's published view for presentation readers.
type Status struct {
	rewind.Status
	TimeScale       float64 `json:"timeScale"`
	Holding         bool    `json:"holding"`
	PendingCommands int     `json:"pendingCommands"`
}

// Loop owns the rewind engine and the world. Commands from other goroutines
// are staged in a ring buffer and applied at the start of the next tick; the
// latest Status is published behind a mutex.
type Loop struct {
	engine *rewind.Engine
	world  World
	scale  *TimeScale
	buffer *CommandBuffer
	hooks  LoopHooks
	config LoopConfig
	deps   Deps

	tick          uint64
	holding       bool
	overrunStreak uint64

	statusMu sync.RWMutex
	status   Status
}

// NewLoop wires the engine, the world and the time scale into a fixed-step
// loop. A nil scale runs at real time.
func NewLoop(engine *rewind.Engine, world World, scale *TimeScale, cfg LoopConfig, hooks LoopHooks, deps Deps) (*Loop, error) {
	if engine == nil {
		return nil, ErrMissingEngine
	}
	if world == nil {
		return nil, ErrMissingWorld
	}
	if scale == nil {
		scale = NewTimeScale(1)
	}
	deps = deps.withDefaults()
	loop := &Loop{
		engine: engine,
		world:  world,
		scale:  scale,
		buffer: NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:  hooks,
		config: cfg,
		deps:   deps,
	}
	loop.publishStatus()
	return loop, nil
}

// Deps returns the injected dependencies.
func (l *Loop) Deps() Deps {
	if l == nil {
		return Deps{}
	}
	return l.deps
}

// TimeScale exposes the loop's speed multiplier.
func (l *Loop) TimeScale() *TimeScale {
	if l == nil {
		return nil
	}
	return l.scale
}

// Status returns the view published after the latest tick. Safe for
// concurrent use.
func (l *Loop) Status() Status {
	if l == nil {
		return Status{}
	}
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Enqueue stages a command for the next tick. Safe for concurrent use.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if cmd.ID == "" {
		cmd.ID = NewCommand(cmd.Type).ID
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.deps.Clock.Now()
	}
	if !l.buffer.Push(cmd) {
		l.reportDrop(l.Status().Tick, CommandRejectQueueFull, cmd)
		return false, CommandRejectQueueFull
	}
	if step := l.config.WarningStep; step > 0 {
		if length := l.buffer.Len(); length >= step && length%step == 0 && l.hooks.OnQueueWarning != nil {
			l.hooks.OnQueueWarning(length)
		}
	}
	return true, ""
}

// Advance runs one tick: staged commands are applied to the engine, a held
// rewind scrubs further back, the world steps only while recording, and the
// engine ticks with the time-scaled delta.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	commands := l.buffer.Drain()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}

	result := LoopStepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
		Commands: commands,
	}
	for _, cmd := range commands {
		if reason := l.apply(cmd); reason != "" {
			result.Rejected = append(result.Rejected, CommandRejection{Command: cmd, Reason: reason})
			l.reportDrop(ctx.Tick, reason, cmd)
		}
	}

	if l.holding && l.engine.IsPreviewing() && l.config.ScrubRate > 0 {
		l.engine.ScrubBy(-time.Duration(float64(ctx.Delta) * l.config.ScrubRate))
	}

	result.Scaled = l.scale.Scale(ctx.Delta)
	if l.engine.Mode() == rewind.ModeRecording {
		l.world.Step(result.Scaled)
		result.Stepped = true
	}

	if l.engine.IsRewinding() {
		result.Report = l.commitTick(result.Scaled)
	} else {
		result.Report = l.engine.Tick(result.Scaled)
	}
	if result.Report.Committed {
		l.holding = false
	}
	result.Status = l.publishStatus()
	return result
}

func (l *Loop) commitTick(delta time.Duration) rewind.TickReport {
	_, span := l.deps.Tracer.Start(context.Background(), "rewind.commit",
		trace.WithAttributes(
			attribute.Int64("rewind.now_ms", l.engine.Now().Duration().Milliseconds()),
			attribute.Int64("rewind.cursor_ms", l.engine.Cursor().Duration().Milliseconds()),
		),
	)
	defer span.End()
	report := l.engine.Tick(delta)
	span.SetAttributes(
		attribute.String("rewind.commit_id", report.CommitID),
		attribute.Int("rewind.removed", report.Removed),
		attribute.Int("rewind.resurrected", report.Resurrected),
		attribute.Int("rewind.truncated", report.Truncated),
	)
	return report
}

// apply executes one command and returns a rejection reason, or "" when the
// engine accepted it.
func (l *Loop) apply(cmd Command) string {
	_, span := l.deps.Tracer.Start(context.Background(), "sim.command",
		trace.WithAttributes(
			attribute.String("command.id", cmd.ID),
			attribute.String("command.type", string(cmd.Type)),
		),
	)
	defer span.End()

	accepted := false
	switch cmd.Type {
	case CommandBeginPreview:
		accepted = l.engine.BeginPreview()
	case CommandScrubBy:
		if cmd.Scrub == nil {
			return CommandRejectInvalid
		}
		accepted = l.engine.ScrubBy(cmd.Scrub.Duration())
	case CommandScrubTo:
		if cmd.Scrub == nil {
			return CommandRejectInvalid
		}
		accepted = l.engine.ScrubTo(cmd.Scrub.Duration())
	case CommandCancel:
		accepted = l.engine.CancelPreview()
		l.holding = false
	case CommandCommit:
		accepted = l.engine.CommitRewind()
		l.holding = false
	case CommandResetHistory:
		l.engine.ResetHistory()
		l.holding = false
		accepted = true
	case CommandSetTimeScale:
		if cmd.TimeScale == nil {
			return CommandRejectInvalid
		}
		l.scale.Set(cmd.TimeScale.Scale)
		accepted = true
	case CommandHoldRewind:
		if !l.engine.IsPreviewing() && !l.engine.BeginPreview() {
			break
		}
		l.holding = true
		accepted = true
	case CommandReleaseRewind:
		if !l.holding {
			break
		}
		l.holding = false
		if cmd.Release != nil && cmd.Release.Cancel {
			accepted = l.engine.CancelPreview()
		} else {
			accepted = l.engine.CommitRewind()
		}
	default:
		return CommandRejectInvalid
	}
	span.SetAttributes(attribute.Bool("command.accepted", accepted))
	if !accepted {
		return CommandRejectMode
	}
	return ""
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	budget := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	clock := l.deps.Clock
	last := clock.Now()
	maxDt := budget
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budget * time.Duration(l.config.CatchupMaxTicks)
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last)
			clamped := false
			if dt <= 0 {
				dt = budget
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now
			l.tick++

			start := clock.Now()
			result := l.Advance(LoopTickContext{Tick: l.tick, Now: now, Delta: dt})
			result.Duration = clock.Now().Sub(start)
			result.Budget = budget
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt

			if l.checkBudget(result) {
				last = clock.Now()
			}
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

// checkBudget publishes overrun events and reports whether the backlog should
// be dropped.
func (l *Loop) checkBudget(result LoopStepResult) bool {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		l.overrunStreak = 0
		return false
	}
	l.overrunStreak++
	ratio := float64(result.Duration) / float64(result.Budget)
	budget := simulation.TickBudgetPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         l.overrunStreak,
	}
	simulation.TickBudgetOverrun(context.Background(), l.deps.Publisher, result.Tick, budget)
	if l.overrunStreak < overrunAlarmStreak || ratio < overrunAlarmRatio {
		return false
	}
	simulation.TickBudgetAlarm(context.Background(), l.deps.Publisher, result.Tick, simulation.TickBudgetAlarmPayload{
		TickBudgetPayload: budget,
		ThresholdRatio:    overrunAlarmRatio,
		ThresholdStreak:   overrunAlarmStreak,
	})
	if l.deps.Logger != nil {
		l.deps.Logger.Printf("[sim] tick %d overran budget %.1fx for %d ticks, dropping backlog", result.Tick, ratio, l.overrunStreak)
	}
	l.overrunStreak = 0
	return true
}

func (l *Loop) publishStatus() Status {
	status := Status{
		Status:          l.engine.Status(),
		TimeScale:       l.scale.Factor(),
		Holding:         l.holding,
		PendingCommands: l.buffer.Len(),
	}
	l.statusMu.Lock()
	l.status = status
	l.statusMu.Unlock()
	return status
}

func (l *Loop) reportDrop(tick uint64, reason string, cmd Command) {
	simulation.CommandRejected(context.Background(), l.deps.Publisher, tick, cmd.ID, simulation.CommandRejectedPayload{
		Type:   string(cmd.Type),
		Reason: reason,
	})
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if reason == CommandRejectQueueFull && l.deps.Logger != nil {
		l.deps.Logger.Printf("[backpressure] dropping command id=%s type=%s", cmd.ID, cmd.Type)
	}
}
