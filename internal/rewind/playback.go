package rewind

import (
	"time"

	"github.com/google/uuid"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/journal"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging/playback"
)

// BeginPreview freezes recording and starts a preview at Now. It is only
// accepted while recording.
func (e *Engine) BeginPreview() bool {
	if e == nil || e.mode != ModeRecording {
		return false
	}
	records := e.registry.records()
	e.present = make(map[EntityID]presentCopy, len(records))
	for _, rec := range records {
		e.present[rec.id] = presentCopy{state: rec.adapter.Capture(), live: rec.live}
	}
	e.mode = ModePreviewing
	e.cursor = e.now
	e.autoRemaining = 0

	e.addMetric(metricPreviews, 1)
	playback.PreviewStarted(e.ctx(), e.publisher, e.tick, logging.Engine(), playback.PreviewStartedPayload{
		NowMillis:       e.now.Duration().Milliseconds(),
		AvailableMillis: e.AvailableRewindTime().Milliseconds(),
	}, nil)
	return true
}

// ScrubBy moves the preview cursor by delta. Negative values look further into
// the past. The cursor saturates at the oldest available instant and at Now.
func (e *Engine) ScrubBy(delta time.Duration) bool {
	if e == nil || !e.mode.previewing() {
		return false
	}
	e.scrub(e.offsetCursor(e.cursor, delta), delta < 0)
	return true
}

// ScrubTo places the preview cursor rewind before Now, clamped to the available
// history. Negative values land on Now.
func (e *Engine) ScrubTo(rewind time.Duration) bool {
	if e == nil || !e.mode.previewing() {
		return false
	}
	target := e.now
	if rewind > 0 {
		target = e.offsetCursor(e.now, -rewind)
	}
	e.scrub(target, rewind > e.now.Sub(e.cursor))
	return true
}

// offsetCursor moves from by delta without leaving [oldest, now]. The bounds
// are compared as distances from from, so extreme deltas cannot wrap.
func (e *Engine) offsetCursor(from journal.Timestamp, delta time.Duration) journal.Timestamp {
	oldest := e.oldestCursor()
	switch {
	case delta >= 0 && delta >= e.now.Sub(from):
		return e.now
	case delta < 0 && delta <= oldest.Sub(from):
		return oldest
	}
	return from.Add(delta)
}

// scrub moves the cursor to target, which must already lie in [oldest, now].
// backward reports that the input asked for an earlier instant than the
// current cursor, even when the cursor could not move.
func (e *Engine) scrub(target journal.Timestamp, backward bool) {
	oldest := e.oldestCursor()
	forward := target > e.cursor
	if target != e.cursor {
		e.cursor = target
		e.registry.beginPass()
		e.reconcile(e.cursor, phasePreview)
		e.registry.endPass()
	}

	switch {
	case e.mode == ModeAutoRewinding && forward:
		e.mode = ModePreviewing
		e.autoRemaining = 0
	case e.mode == ModePreviewing && backward && e.cursor <= oldest && oldest < e.now:
		e.mode = ModeAutoRewinding
		e.autoRemaining = e.autoRewindTime
		e.addMetric(metricAutoRewinds, 1)
		playback.AutoRewindArmed(e.ctx(), e.publisher, e.tick, logging.Engine(), playback.AutoRewindArmedPayload{
			CountdownMillis: e.autoRewindTime.Milliseconds(),
			CursorMillis:    e.cursor.Duration().Milliseconds(),
		}, nil)
	}
}

// CancelPreview abandons the preview and puts every entity back into the state
// it had when the preview began. History and Now are untouched.
func (e *Engine) CancelPreview() bool {
	if e == nil || !e.mode.previewing() {
		return false
	}
	rewound := e.PreviewRewindTime()
	e.restorePresent()
	e.mode = ModeRecording
	playback.PreviewCancelled(e.ctx(), e.publisher, e.tick, logging.Engine(), playback.PreviewCancelledPayload{
		RewindMillis: rewound.Milliseconds(),
	}, nil)
	return true
}

// CommitRewind schedules a commit to the cursor. The next Tick applies it.
func (e *Engine) CommitRewind() bool {
	if e == nil || !e.mode.previewing() {
		return false
	}
	e.mode = ModeRewinding
	e.autoCommit = false
	e.autoRemaining = 0
	e.commitID = newCommitID()
	return true
}

// ResetHistory drops every recorded entry and restarts all existence intervals
// at Now. An active preview or pending commit is cancelled first.
func (e *Engine) ResetHistory() {
	if e == nil {
		return
	}
	if e.mode != ModeRecording {
		e.restorePresent()
		e.mode = ModeRecording
	}
	for _, rec := range e.registry.records() {
		if rec.admitted() {
			rec.ledger.Reset(e.now)
		}
	}
	e.timeline.Reset(e.now)
	e.logf("rewind: history reset at %s", e.now)
	playback.HistoryReset(e.ctx(), e.publisher, e.tick, logging.Engine(), playback.HistoryResetPayload{
		NowMillis: e.now.Duration().Milliseconds(),
		Tracked:   e.registry.Len(),
	}, nil)
	e.storeGauges()
}

func (e *Engine) commit(report *TickReport) {
	from := e.now
	to := e.cursor

	e.registry.beginPass()
	result := e.reconcile(to, phaseCommit)
	truncated := e.timeline.TruncateAfter(to)
	for _, rec := range e.registry.records() {
		if rec.admitted() {
			truncated += rec.ledger.TruncateAfter(to)
		}
	}
	e.now = to
	e.registry.endPass()

	auto := e.autoCommit
	commitID := e.commitID
	e.mode = ModeRecording
	e.present = nil
	e.autoCommit = false
	e.autoRemaining = 0
	e.commitID = ""

	report.Committed = true
	report.CommitID = commitID
	report.CommitTo = to
	report.Truncated = truncated
	report.Removed = len(result.removed)
	report.Resurrected = len(result.resurrected)

	for _, rec := range result.removed {
		e.publishRemoved(rec, to)
	}
	for _, revived := range result.resurrected {
		e.publishResurrected(revived, to)
	}
	e.addMetric(metricCommits, 1)
	e.addMetric(metricEntitiesRemoved, uint64(len(result.removed)))
	e.addMetric(metricEntitiesResurrected, uint64(len(result.resurrected)))
	e.logf("rewind: commit %s %s -> %s (removed=%d resurrected=%d auto=%t)", commitID, from, to, len(result.removed), len(result.resurrected), auto)
	playback.RewindCommitted(e.ctx(), e.publisher, e.tick, logging.Engine(), playback.RewindCommittedPayload{
		CommitID:         commitID,
		FromMillis:       from.Duration().Milliseconds(),
		ToMillis:         to.Duration().Milliseconds(),
		Auto:             auto,
		EntriesTruncated: truncated,
		Removed:          len(result.removed),
		Resurrected:      len(result.resurrected),
	}, map[string]any{"commitId": commitID})
}

// restorePresent undoes every preview-side effect using the copies taken by
// BeginPreview. Entities registered during the preview are left alone.
func (e *Engine) restorePresent() {
	e.registry.beginPass()
	defer e.registry.endPass()
	for _, rec := range e.registry.records() {
		if rec.removed {
			continue
		}
		saved, ok := e.present[rec.id]
		if !ok {
			continue
		}
		if saved.live && !rec.live {
			rec.adapter.Resurrect()
			rec.live = true
		}
		rec.adapter.Restore(saved.state)
		if !saved.live && rec.live {
			rec.adapter.Destroy()
			rec.live = false
		}
	}
	e.present = nil
	e.cursor = e.now
	e.autoRemaining = 0
	e.autoCommit = false
	e.commitID = ""
}

func newCommitID() string {
	return uuid.NewString()
}
