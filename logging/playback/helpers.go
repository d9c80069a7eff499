package playback

import (
	"context"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

const (
	// EventPreviewStarted is emitted when the engine leaves recording to scrub history.
	EventPreviewStarted logging.EventType = "playback.preview_started"
	// EventPreviewCancelled is emitted when a preview is abandoned and the present restored.
	EventPreviewCancelled logging.EventType = "playback.preview_cancelled"
	// EventAutoRewindArmed is emitted when scrubbing reaches the oldest recorded instant.
	EventAutoRewindArmed logging.EventType = "playback.auto_rewind_armed"
	// EventRewindCommitted is emitted after history past the cursor has been discarded.
	EventRewindCommitted logging.EventType = "playback.committed"
	// EventHistoryReset is emitted when every ledger is cleared.
	EventHistoryReset logging.EventType = "playback.history_reset"
)

// PreviewStartedPayload captures the recorded span available when a preview begins.
type PreviewStartedPayload struct {
	NowMillis       int64 `json:"nowMillis"`
	AvailableMillis int64 `json:"availableMillis"`
}

// PreviewCancelledPayload captures how far back the abandoned preview had scrubbed.
type PreviewCancelledPayload struct {
	RewindMillis int64 `json:"rewindMillis"`
}

// AutoRewindArmedPayload captures the countdown that was started.
type AutoRewindArmedPayload struct {
	CountdownMillis int64 `json:"countdownMillis"`
	CursorMillis    int64 `json:"cursorMillis"`
}

// RewindCommittedPayload summarises a committed rewind.
type RewindCommittedPayload struct {
	CommitID         string `json:"commitId"`
	FromMillis       int64  `json:"fromMillis"`
	ToMillis         int64  `json:"toMillis"`
	Auto             bool   `json:"auto"`
	EntriesTruncated int    `json:"entriesTruncated"`
	Removed          int    `json:"removed"`
	Resurrected      int    `json:"resurrected"`
}

// HistoryResetPayload captures the timestamp recording restarts from.
type HistoryResetPayload struct {
	NowMillis int64 `json:"nowMillis"`
	Tracked   int   `json:"tracked"`
}

// PreviewStarted publishes a preview start event.
func PreviewStarted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PreviewStartedPayload, extra map[string]any) {
	publish(ctx, pub, EventPreviewStarted, logging.SeverityInfo, tick, actor, payload, extra)
}

// PreviewCancelled publishes a preview cancellation event.
func PreviewCancelled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PreviewCancelledPayload, extra map[string]any) {
	publish(ctx, pub, EventPreviewCancelled, logging.SeverityInfo, tick, actor, payload, extra)
}

// AutoRewindArmed publishes a warning that the preview hit the edge of history.
func AutoRewindArmed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AutoRewindArmedPayload, extra map[string]any) {
	publish(ctx, pub, EventAutoRewindArmed, logging.SeverityWarn, tick, actor, payload, extra)
}

// RewindCommitted publishes a commit event.
func RewindCommitted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RewindCommittedPayload, extra map[string]any) {
	publish(ctx, pub, EventRewindCommitted, logging.SeverityInfo, tick, actor, payload, extra)
}

// HistoryReset publishes a history reset event.
func HistoryReset(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload HistoryResetPayload, extra map[string]any) {
	publish(ctx, pub, EventHistoryReset, logging.SeverityInfo, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	logging.Emit(ctx, pub, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryPlayback,
		Payload:  payload,
		Extra:    extra,
	})
}
