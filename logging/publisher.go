package logging

import (
	"context"
	"maps"
	"strconv"
	"time"
)

// EventType names a structured event, namespaced by its helper package
// (for example "playback.committed").
type EventType string

// Severity orders events for sink filtering.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// Categories group event types for sinks that only care about one area.
const (
	CategoryPlayback  = "playback"
	CategoryLifecycle = "lifecycle"
	CategorySystem    = "system"
)

// EntityKind tells an engine-level actor apart from a registered entity.
type EntityKind string

const (
	EntityKindUnknown EntityKind = "unknown"
	EntityKindEntity  EntityKind = "entity"
	EntityKindEngine  EntityKind = "engine"
	EntityKindLoop    EntityKind = "loop"
)

// EntityRef identifies the subject of an event. Name carries the adapter's
// self-reported kind (projectile, spawner, ...) when it has one.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// EntityID builds a reference to a registered entity.
func EntityID(id uint64, name string) EntityRef {
	return EntityRef{ID: strconv.FormatUint(id, 10), Kind: EntityKindEntity, Name: name}
}

// Engine is the reference used for events emitted by the engine itself.
func Engine() EntityRef {
	return EntityRef{Kind: EntityKindEngine}
}

// Loop is the reference used for events emitted by the simulation loop.
func Loop() EntityRef {
	return EntityRef{Kind: EntityKindLoop}
}

// Event is one structured record. Tick counts engine ticks, not wall-clock
// frames; Time is stamped by the router when left zero.
type Event struct {
	Type      EventType      `json:"type"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	Actor     EntityRef      `json:"actor"`
	Targets   []EntityRef    `json:"targets,omitempty"`
	Severity  Severity       `json:"severity"`
	Category  string         `json:"category,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	CommandID string         `json:"commandId,omitempty"`
}

// Clone copies the slice and map fields so the result can be handed to another
// goroutine. Payload is shared; helpers publish payloads by value.
func (e Event) Clone() Event {
	if e.Targets != nil {
		e.Targets = append([]EntityRef(nil), e.Targets...)
	}
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	return e
}

// withDefaults returns a clone whose Extra also carries every field key the
// event does not set itself.
func (e Event) withDefaults(fields map[string]any) Event {
	e = e.Clone()
	if len(fields) == 0 {
		return e
	}
	if e.Extra == nil {
		e.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, ok := e.Extra[k]; !ok {
			e.Extra[k] = v
		}
	}
	return e
}

// Publisher accepts events for delivery. Implementations must not block the
// simulation goroutine.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher. A nil func discards events.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(nil)

// Emit publishes event through pub when pub is set. Helper packages build
// their events and hand them here.
func Emit(ctx context.Context, pub Publisher, event Event) {
	if pub == nil || event.Type == "" {
		return
	}
	pub.Publish(ctx, event)
}
