package rewind

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/journal"
)

// TickReport summarises what a single Tick did.
type TickReport struct {
	Tick uint64
	Now  journal.Timestamp
	Mode Mode

	Captured int
	Admitted int
	Evicted  int

	Committed   bool
	CommitID    string
	CommitTo    journal.Timestamp
	Truncated   int
	Removed     int
	Resurrected int

	AutoExpired bool
}

// Tick advances the engine by one simulation step. delta is the time-scaled
// simulation time elapsed since the previous tick; negative values count as
// zero.
//
// While recording, Tick advances Now by delta and captures every entity. While
// auto-rewinding it runs the countdown down by delta; a paused time scale
// freezes the countdown until the caller ends the preview itself. A pending
// commit is applied on the tick after CommitRewind or after the countdown
// expires, and that tick captures nothing.
func (e *Engine) Tick(delta time.Duration) TickReport {
	if e == nil {
		return TickReport{}
	}
	if delta < 0 {
		delta = 0
	}
	e.tick++
	report := TickReport{Tick: e.tick}

	switch e.mode {
	case ModeRecording:
		e.capture(delta, &report)
	case ModeAutoRewinding:
		e.autoRemaining -= delta
		if e.autoRemaining <= 0 {
			e.autoRemaining = 0
			e.autoCommit = true
			e.commitID = newCommitID()
			e.mode = ModeRewinding
			report.AutoExpired = true
		}
	case ModeRewinding:
		e.commit(&report)
	}

	report.Now = e.now
	report.Mode = e.mode
	e.storeGauges()
	return report
}

func (e *Engine) capture(delta time.Duration, report *TickReport) {
	e.now = e.now.Add(delta)
	e.registry.beginPass()
	defer e.registry.endPass()

	report.Admitted = e.registry.admit(e.now)
	records := e.registry.records()
	active := records[:0:0]
	for _, rec := range records {
		if !rec.admitted() {
			continue
		}
		if rec.destroyPending {
			rec.ledger.MarkDestroyed(e.now)
			rec.destroyPending = false
		}
		active = append(active, rec)
	}

	states := e.captureStates(active)
	for i, rec := range active {
		result := rec.ledger.Record(journal.Entry{At: e.now, State: states[i]}, e.maxRecordTime)
		report.Evicted += len(result.Evicted)
	}
	e.timeline.Record(journal.Entry{At: e.now}, e.maxRecordTime)
	report.Captured = len(active)

	e.addMetric(metricTicksRecorded, 1)
	e.addMetric(metricLedgerEvictions, uint64(report.Evicted))
}

// captureStates calls Capture on every record. With more than one worker the
// calls run concurrently; results keep the order of records.
func (e *Engine) captureStates(records []*record) []Snapshot {
	states := make([]Snapshot, len(records))
	if e.captureWorkers < 2 || len(records) < 2 {
		for i, rec := range records {
			states[i] = rec.adapter.Capture()
		}
		return states
	}

	var group errgroup.Group
	group.SetLimit(e.captureWorkers)
	for i, rec := range records {
		group.Go(func() error {
			states[i] = rec.adapter.Capture()
			return nil
		})
	}
	_ = group.Wait()
	return states
}
