package logging

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock supplies wall-clock time for event stamping and loop pacing.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Printer receives the router's own diagnostics (drops, sink failures).
// *logrus.Logger and *log.Logger both satisfy it.
type Printer interface {
	Printf(format string, args ...any)
}

// Sink persists or renders routed events. Write is only ever called from the
// sink's own goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// RouterStats counts events over the router's lifetime.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	SinkFailures uint64
}

const (
	defaultRouterBuffer = 512
	minOutletBuffer     = 32
	maxOutletBuffer     = 1024
)

// Router fans published events out to sinks. Publish never blocks: events are
// queued, stamped and filtered on a dispatch goroutine, and every sink drains
// its own outlet so a slow file cannot stall the console.
type Router struct {
	clock    Clock
	fallback Printer
	minimum  Severity
	fields   map[string]any

	queue   chan Event
	stop    chan struct{}
	outlets []*outlet
	wg      sync.WaitGroup
	closed  atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64

	warnEvery time.Duration
	warnAfter atomic.Int64
}

type outlet struct {
	name   string
	sink   Sink
	events chan Event
}

// NewRouter starts a router that fans events out to the provided sinks. A nil
// fallback routes router diagnostics to the logrus standard logger.
func NewRouter(clock Clock, cfg Config, fallback Printer, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = logrus.StandardLogger()
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultRouterBuffer
	}
	warnEvery := cfg.DropWarnInterval
	if warnEvery <= 0 {
		warnEvery = 5 * time.Second
	}
	r := &Router{
		clock:     clock,
		fallback:  fallback,
		minimum:   cfg.MinimumSeverity,
		fields:    maps.Clone(cfg.Fields),
		queue:     make(chan Event, size),
		stop:      make(chan struct{}),
		warnEvery: warnEvery,
	}
	outletSize := min(max(size, minOutletBuffer), maxOutletBuffer)
	for _, named := range namedSinks {
		if named.Sink != nil {
			r.outlets = append(r.outlets, &outlet{name: named.Name, sink: named.Sink, events: make(chan Event, outletSize)})
		}
	}

	r.wg.Add(1 + len(r.outlets))
	go r.dispatch()
	for _, o := range r.outlets {
		go r.drainOutlet(o)
	}
	return r, nil
}

// Publish enqueues an event. A full queue drops it and warns through the
// fallback printer at most once per DropWarnInterval.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		r.warn("[logging] queue full, dropping event type=%s tick=%d", event.Type, event.Tick)
	}
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, o := range r.outlets {
			close(o.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minimum {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = event.withDefaults(r.fields)
	r.published.Add(1)
	for _, o := range r.outlets {
		select {
		case o.events <- event.Clone():
		default:
			r.dropped.Add(1)
			r.warn("[logging] sink %s backlog full, dropping event type=%s", o.name, event.Type)
		}
	}
}

func (r *Router) drainOutlet(o *outlet) {
	defer r.wg.Done()
	for event := range o.events {
		if err := o.sink.Write(event); err != nil {
			r.failures.Add(1)
			r.warn("[logging] sink %s failed to write %s: %v", o.name, event.Type, err)
		}
	}
}

// warn rate-limits fallback diagnostics across the whole router.
func (r *Router) warn(format string, args ...any) {
	now := time.Now().UnixNano()
	next := r.warnAfter.Load()
	if now < next {
		return
	}
	if r.warnAfter.CompareAndSwap(next, now+r.warnEvery.Nanoseconds()) {
		r.fallback.Printf(format, args...)
	}
}

// Close stops accepting events, delivers what is queued and closes every sink.
// Only the first call does any work.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, o := range r.outlets {
		if err := o.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		EventsTotal:  r.published.Load(),
		DroppedTotal: r.dropped.Load(),
		SinkFailures: r.failures.Load(),
	}
}

// Sink returns the sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, o := range r.outlets {
		if o.name == name {
			return o.sink
		}
	}
	return nil
}
