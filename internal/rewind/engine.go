package rewind

import (
	"context"
	"errors"
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/journal"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

const (
	// DefaultMaxRecordTime is the retention window used when none is configured.
	DefaultMaxRecordTime = 5 * time.Second
	// DefaultAutoRewindTime is the countdown armed when a preview reaches the
	// oldest recorded instant.
	DefaultAutoRewindTime = 1500 * time.Millisecond
)

var (
	// ErrInvalidRecordTime indicates a non-positive retention window.
	ErrInvalidRecordTime = errors.New("rewind: max record time must be positive")
	// ErrInvalidAutoRewindTime indicates a negative auto-rewind countdown.
	ErrInvalidAutoRewindTime = errors.New("rewind: auto rewind time must not be negative")
	// ErrInvalidMaxEntries indicates a negative ledger entry cap.
	ErrInvalidMaxEntries = errors.New("rewind: max entries must not be negative")
	// ErrInvalidCaptureWorkers indicates a negative capture worker count.
	ErrInvalidCaptureWorkers = errors.New("rewind: capture workers must not be negative")
)

// EngineOption configures NewEngine. Options are applied in order; later
// options override earlier ones.
type EngineOption interface {
	apply(*engineConfig)
}

type engineOptionFunc func(*engineConfig)

func (f engineOptionFunc) apply(cfg *engineConfig) {
	if f != nil {
		f(cfg)
	}
}

type engineConfig struct {
	maxRecordTime  time.Duration
	autoRewindTime time.Duration
	maxEntries     int
	captureWorkers int
	publisher      logging.Publisher
	metrics        telemetry.Metrics
	logger         telemetry.Logger
}

// WithMaxRecordTime sets the retention window.
func WithMaxRecordTime(d time.Duration) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.maxRecordTime = d
	})
}

// WithAutoRewindTime sets the countdown armed at the edge of history. Zero
// commits on the tick after the edge is reached.
func WithAutoRewindTime(d time.Duration) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.autoRewindTime = d
	})
}

// WithMaxEntries caps the number of entries each ledger retains in addition to
// the retention window.
func WithMaxEntries(n int) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.maxEntries = n
	})
}

// WithCaptureWorkers runs adapter captures on up to n goroutines. Values below
// two capture sequentially.
func WithCaptureWorkers(n int) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.captureWorkers = n
	})
}

// WithPublisher routes playback and lifecycle events.
func WithPublisher(pub logging.Publisher) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.publisher = pub
	})
}

// WithMetrics records engine counters and gauges.
func WithMetrics(metrics telemetry.Metrics) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.metrics = metrics
	})
}

// WithLogger receives operator diagnostics.
func WithLogger(logger telemetry.Logger) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.logger = logger
	})
}

// presentCopy is the state of one entity when a preview began.
type presentCopy struct {
	state Snapshot
	live  bool
}

// Engine records registered entities every tick and drives preview, cancel and
// commit of rewinds. It is not safe for concurrent use; the simulation loop
// owns it.
type Engine struct {
	maxRecordTime  time.Duration
	autoRewindTime time.Duration
	captureWorkers int

	publisher logging.Publisher
	metrics   telemetry.Metrics
	logger    telemetry.Logger

	registry *Registry
	// timeline holds one stateless entry per capture pass and defines the
	// available rewind span independently of individual entity lifetimes.
	timeline *journal.Ledger

	tick          uint64
	now           journal.Timestamp
	mode          Mode
	cursor        journal.Timestamp
	autoRemaining time.Duration
	autoCommit    bool
	commitID      string
	present       map[EntityID]presentCopy
}

// NewEngine constructs an engine in Recording mode at timestamp zero.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{
		maxRecordTime:  DefaultMaxRecordTime,
		autoRewindTime: DefaultAutoRewindTime,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}

	switch {
	case cfg.maxRecordTime <= 0:
		return nil, ErrInvalidRecordTime
	case cfg.autoRewindTime < 0:
		return nil, ErrInvalidAutoRewindTime
	case cfg.maxEntries < 0:
		return nil, ErrInvalidMaxEntries
	case cfg.captureWorkers < 0:
		return nil, ErrInvalidCaptureWorkers
	}
	if cfg.publisher == nil {
		cfg.publisher = logging.Discard
	}

	return &Engine{
		maxRecordTime:  cfg.maxRecordTime,
		autoRewindTime: cfg.autoRewindTime,
		captureWorkers: cfg.captureWorkers,
		publisher:      cfg.publisher,
		metrics:        cfg.metrics,
		logger:         cfg.logger,
		registry:       NewRegistry(cfg.maxEntries),
		timeline:       journal.NewLedger(0, cfg.maxEntries),
		mode:           ModeRecording,
	}, nil
}

// Register tracks adapter and returns its id. The entity is admitted, and its
// existence interval starts, at the next capture pass.
func (e *Engine) Register(adapter Adapter) EntityID {
	if e == nil {
		return InvalidID
	}
	return e.registry.Register(adapter)
}

// Unregister stops tracking id and frees its history. Calls made during a
// capture or commit pass take effect when the pass ends.
func (e *Engine) Unregister(id EntityID) bool {
	if e == nil {
		return false
	}
	if !e.registry.Unregister(id) {
		return false
	}
	delete(e.present, id)
	return true
}

// Destroy kills a live entity on behalf of gameplay. The adapter's Destroy runs
// immediately and the existence interval closes at the next capture pass. Only
// accepted while recording.
func (e *Engine) Destroy(id EntityID) bool {
	if e == nil || e.mode != ModeRecording {
		return false
	}
	rec := e.registry.get(id)
	if rec == nil || !rec.live {
		return false
	}
	rec.adapter.Destroy()
	rec.live = false
	rec.destroyPending = true
	e.publishDestroyed(rec)
	return true
}

// Lookup resolves an id reference. Freed entities resolve to absent; destroyed
// entities still resolve and report false from Alive.
func (e *Engine) Lookup(id EntityID) (Adapter, bool) {
	if e == nil {
		return nil, false
	}
	return e.registry.Lookup(id)
}

// Alive reports whether id is tracked and currently live.
func (e *Engine) Alive(id EntityID) bool {
	if e == nil {
		return false
	}
	return e.registry.Alive(id)
}

// Releasable reports whether id is destroyed so far back that no rewind inside
// the current window can resurrect it. Callers may unregister such entities.
func (e *Engine) Releasable(id EntityID) bool {
	if e == nil {
		return false
	}
	rec := e.registry.get(id)
	if rec == nil || rec.live || !rec.admitted() {
		return false
	}
	iv := rec.ledger.Interval()
	return iv.Destroyed && iv.DestroyedAt <= e.oldestCursor()
}

// Interval reports id's existence interval. The second result is false for
// unknown ids and entities not admitted yet.
func (e *Engine) Interval(id EntityID) (journal.Interval, bool) {
	if e == nil {
		return journal.Interval{}, false
	}
	rec := e.registry.get(id)
	if rec == nil || !rec.admitted() {
		return journal.Interval{}, false
	}
	return rec.ledger.Interval(), true
}

// History returns a copy of id's retained ledger entries.
func (e *Engine) History(id EntityID) []journal.Entry {
	if e == nil {
		return nil
	}
	rec := e.registry.get(id)
	if rec == nil || !rec.admitted() {
		return nil
	}
	return rec.ledger.Entries()
}

// IDs lists tracked entities in iteration order.
func (e *Engine) IDs() []EntityID {
	if e == nil {
		return nil
	}
	return e.registry.IDs()
}

func (e *Engine) Mode() Mode {
	if e == nil {
		return ModeRecording
	}
	return e.mode
}

// Now is the simulation timestamp of the latest capture pass or commit.
func (e *Engine) Now() journal.Timestamp {
	if e == nil {
		return 0
	}
	return e.now
}

// Cursor is the timestamp being previewed. Outside a preview it equals Now.
func (e *Engine) Cursor() journal.Timestamp {
	if e == nil {
		return 0
	}
	if e.mode == ModeRecording {
		return e.now
	}
	return e.cursor
}

// TickCount is the number of Tick calls so far.
func (e *Engine) TickCount() uint64 {
	if e == nil {
		return 0
	}
	return e.tick
}

// IsPreviewing reports whether a preview is active, including while the
// auto-rewind countdown runs.
func (e *Engine) IsPreviewing() bool {
	return e != nil && e.mode.previewing()
}

func (e *Engine) IsRewinding() bool {
	return e != nil && e.mode == ModeRewinding
}

func (e *Engine) IsAutoRewinding() bool {
	return e != nil && e.mode == ModeAutoRewinding
}

// MaxRecordTime is the configured retention window.
func (e *Engine) MaxRecordTime() time.Duration {
	if e == nil {
		return 0
	}
	return e.maxRecordTime
}

// AvailableRewindTime is how far back from Now a preview may move, bounded by
// MaxRecordTime.
func (e *Engine) AvailableRewindTime() time.Duration {
	if e == nil {
		return 0
	}
	oldest, ok := e.timeline.Oldest()
	if !ok {
		return 0
	}
	available := e.now.Sub(oldest.At)
	if available < 0 {
		return 0
	}
	if available > e.maxRecordTime {
		return e.maxRecordTime
	}
	return available
}

// PreviewRewindTime is how far behind Now the cursor sits. Zero while
// recording.
func (e *Engine) PreviewRewindTime() time.Duration {
	if e == nil || e.mode == ModeRecording {
		return 0
	}
	return e.now.Sub(e.cursor)
}

// AutoRewindRemainingTime is the countdown left before a forced commit. Zero
// unless auto-rewinding.
func (e *Engine) AutoRewindRemainingTime() time.Duration {
	if e == nil || e.mode != ModeAutoRewinding {
		return 0
	}
	return e.autoRemaining
}

// TrackedObjectCount is the number of registered entities, destroyed and
// pending ones included.
func (e *Engine) TrackedObjectCount() int {
	if e == nil {
		return 0
	}
	return e.registry.Len()
}

// Status is a read-only view of the engine for the presentation layer.
type Status struct {
	Tick                  uint64 `json:"tick"`
	Mode                  string `json:"mode"`
	NowMillis             int64  `json:"nowMillis"`
	CursorMillis          int64  `json:"cursorMillis"`
	Previewing            bool   `json:"previewing"`
	Rewinding             bool   `json:"rewinding"`
	AutoRewinding         bool   `json:"autoRewinding"`
	AvailableRewindMillis int64  `json:"availableRewindMillis"`
	MaxRecordMillis       int64  `json:"maxRecordMillis"`
	PreviewRewindMillis   int64  `json:"previewRewindMillis"`
	AutoRewindRemaining   int64  `json:"autoRewindRemainingMillis"`
	TrackedObjects        int    `json:"trackedObjects"`
	PendingCommitID       string `json:"pendingCommitId,omitempty"`
}

// Status snapshots every query at once.
func (e *Engine) Status() Status {
	if e == nil {
		return Status{}
	}
	status := Status{
		Tick:                  e.tick,
		Mode:                  e.mode.String(),
		NowMillis:             e.now.Duration().Milliseconds(),
		CursorMillis:          e.Cursor().Duration().Milliseconds(),
		Previewing:            e.IsPreviewing(),
		Rewinding:             e.IsRewinding(),
		AutoRewinding:         e.IsAutoRewinding(),
		AvailableRewindMillis: e.AvailableRewindTime().Milliseconds(),
		MaxRecordMillis:       e.maxRecordTime.Milliseconds(),
		PreviewRewindMillis:   e.PreviewRewindTime().Milliseconds(),
		AutoRewindRemaining:   e.AutoRewindRemainingTime().Milliseconds(),
		TrackedObjects:        e.TrackedObjectCount(),
	}
	if e.mode == ModeRewinding {
		status.PendingCommitID = e.commitID
	}
	return status
}

// oldestCursor is the earliest instant a preview may reach.
func (e *Engine) oldestCursor() journal.Timestamp {
	return e.now.Add(-e.AvailableRewindTime())
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}

func (e *Engine) ctx() context.Context {
	return context.Background()
}
