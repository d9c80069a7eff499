package rewind

import (
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/journal"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging/lifecycle"
)

type phase int

const (
	// phasePreview hides and reveals entities without touching history.
	phasePreview phase = iota
	// phaseCommit makes the cursor the new present.
	phaseCommit
)

type resurrection struct {
	rec         *record
	destroyedAt journal.Timestamp
}

type reconcileResult struct {
	removed     []*record
	resurrected []resurrection
}

// reconcile brings every tracked entity to its state at cursor.
//
// Entities not yet born at cursor are destroyed; on commit they are also freed
// and unregistered. Entities whose existence interval covers cursor are
// resurrected if needed and restored from the newest entry at or before
// cursor. Entities already destroyed at cursor stay destroyed. Pending
// registrations count as born at Now with no history.
func (e *Engine) reconcile(cursor journal.Timestamp, ph phase) reconcileResult {
	var result reconcileResult
	for _, rec := range e.registry.records() {
		if rec.removed {
			continue
		}
		if !e.existsAt(rec, cursor) {
			if rec.live {
				rec.adapter.Destroy()
				rec.live = false
			}
			if ph == phaseCommit && e.bornAfter(rec, cursor) {
				if freer, ok := rec.adapter.(Freer); ok {
					freer.Free()
				}
				e.registry.Unregister(rec.id)
				result.removed = append(result.removed, rec)
			}
			continue
		}

		if !rec.live {
			rec.adapter.Resurrect()
			rec.live = true
		}
		if ph == phaseCommit {
			if revived, ok := e.reopen(rec); ok {
				result.resurrected = append(result.resurrected, revived)
			}
		}
		if !rec.admitted() {
			continue
		}
		if entry, ok := rec.ledger.Lookup(cursor); ok {
			rec.adapter.Restore(entry.State)
		}
	}
	return result
}

// reopen clears a destruction that happened after the commit cursor. A
// preview may already have resurrected the adapter, so the interval and the
// pending flag decide, not the live flag.
func (e *Engine) reopen(rec *record) (resurrection, bool) {
	revived := resurrection{rec: rec, destroyedAt: e.now}
	reopened := rec.destroyPending
	rec.destroyPending = false
	if rec.admitted() {
		if iv := rec.ledger.Interval(); iv.Destroyed {
			revived.destroyedAt = iv.DestroyedAt
			rec.ledger.ClearDestroyed()
			reopened = true
		}
	}
	return revived, reopened
}

func (e *Engine) bornAfter(rec *record, cursor journal.Timestamp) bool {
	if !rec.admitted() {
		return cursor < e.now
	}
	return rec.ledger.BornAfter(cursor)
}

func (e *Engine) existsAt(rec *record, cursor journal.Timestamp) bool {
	if !rec.admitted() {
		return cursor >= e.now
	}
	return rec.ledger.Interval().Covers(cursor)
}

func (e *Engine) publishRemoved(rec *record, cursor journal.Timestamp) {
	var bornAt journal.Timestamp
	if rec.admitted() {
		bornAt = rec.ledger.Interval().BornAt
	} else {
		bornAt = e.now
	}
	lifecycle.EntityRemoved(e.ctx(), e.publisher, e.tick, logging.EntityID(uint64(rec.id), rec.kind), lifecycle.EntityRemovedPayload{
		BornAtMillis: bornAt.Duration().Milliseconds(),
		CursorMillis: cursor.Duration().Milliseconds(),
	}, nil)
}

func (e *Engine) publishResurrected(revived resurrection, cursor journal.Timestamp) {
	rec := revived.rec
	lifecycle.EntityResurrected(e.ctx(), e.publisher, e.tick, logging.EntityID(uint64(rec.id), rec.kind), lifecycle.EntityResurrectedPayload{
		DestroyedAtMillis: revived.destroyedAt.Duration().Milliseconds(),
		CursorMillis:      cursor.Duration().Milliseconds(),
	}, nil)
}

func (e *Engine) publishDestroyed(rec *record) {
	lifecycle.EntityDestroyed(e.ctx(), e.publisher, e.tick, logging.EntityID(uint64(rec.id), rec.kind), lifecycle.EntityDestroyedPayload{
		AtMillis: e.now.Duration().Milliseconds(),
	}, nil)
}
