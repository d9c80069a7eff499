package lifecycle

import (
	"context"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

const (
	// EventEntityRemoved is emitted when a commit discards an entity that did not exist at the cursor.
	EventEntityRemoved logging.EventType = "lifecycle.entity_removed"
	// EventEntityResurrected is emitted when a commit revives an entity that was alive at the cursor.
	EventEntityResurrected logging.EventType = "lifecycle.entity_resurrected"
	// EventEntityDestroyed is emitted when gameplay destroys a tracked entity.
	EventEntityDestroyed logging.EventType = "lifecycle.entity_destroyed"
)

// EntityRemovedPayload records when the removed entity had been born.
type EntityRemovedPayload struct {
	BornAtMillis int64 `json:"bornAtMillis"`
	CursorMillis int64 `json:"cursorMillis"`
}

// EntityResurrectedPayload records the timestamp the entity had been destroyed at.
type EntityResurrectedPayload struct {
	DestroyedAtMillis int64 `json:"destroyedAtMillis"`
	CursorMillis      int64 `json:"cursorMillis"`
}

// EntityDestroyedPayload records the timestamp the destruction was requested at.
type EntityDestroyedPayload struct {
	AtMillis int64 `json:"atMillis"`
}

// EntityRemoved publishes an entity removal event.
func EntityRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityRemovedPayload, extra map[string]any) {
	logging.Emit(ctx, pub, entityEvent(EventEntityRemoved, logging.SeverityInfo, tick, actor, payload, extra))
}

// EntityResurrected publishes an entity resurrection event.
func EntityResurrected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityResurrectedPayload, extra map[string]any) {
	logging.Emit(ctx, pub, entityEvent(EventEntityResurrected, logging.SeverityInfo, tick, actor, payload, extra))
}

// EntityDestroyed publishes a gameplay destruction event at debug severity.
func EntityDestroyed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityDestroyedPayload, extra map[string]any) {
	logging.Emit(ctx, pub, entityEvent(EventEntityDestroyed, logging.SeverityDebug, tick, actor, payload, extra))
}

func entityEvent(eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) logging.Event {
	return logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
}
