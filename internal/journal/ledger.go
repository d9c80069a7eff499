package journal

import (
	"sort"
	"time"
)

// Timestamp is a point on the simulation timeline measured from the engine
// epoch. It is not wall-clock time and only advances while recording.
type Timestamp time.Duration

// Add returns the timestamp shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d)
}

// Sub returns the elapsed simulation time between o and t.
func (t Timestamp) Sub(o Timestamp) time.Duration {
	return time.Duration(t - o)
}

// Duration reports the timestamp as an offset from the epoch.
func (t Timestamp) Duration() time.Duration {
	return time.Duration(t)
}

func (t Timestamp) String() string {
	return time.Duration(t).String()
}

const (
	// EvictionExpired marks entries dropped because they left the retention window.
	EvictionExpired = "expired"
	// EvictionCount marks entries dropped because the ledger hit its entry cap.
	EvictionCount = "count"
)

// Entry pairs a captured state with the timestamp it was captured at.
type Entry struct {
	At    Timestamp
	State any
}

// Eviction describes an entry removed from the front of a ledger and why.
type Eviction struct {
	At     Timestamp
	Reason string
}

// RecordResult reports ledger state after recording an entry.
type RecordResult struct {
	Size     int
	Oldest   Timestamp
	Newest   Timestamp
	Replaced bool
	Rejected bool
	Evicted  []Eviction
}

// Interval is the span of simulation time during which an entity existed.
// DestroyedAt is only meaningful when Destroyed is set.
type Interval struct {
	BornAt      Timestamp
	DestroyedAt Timestamp
	Destroyed   bool
}

// Covers reports whether the entity was alive at t.
func (iv Interval) Covers(t Timestamp) bool {
	if t < iv.BornAt {
		return false
	}
	return !iv.Destroyed || t < iv.DestroyedAt
}

// Ledger is a bounded, time-ordered history of captured states for a single
// entity. Entries are appended at the back and evicted from the front; the
// backing storage is a ring that grows on demand so steady-state recording
// does not allocate.
type Ledger struct {
	entries    []Entry
	head       int
	count      int
	maxEntries int
	interval   Interval
}

// NewLedger constructs an empty ledger for an entity born at bornAt. A
// positive maxEntries caps the number of retained entries in addition to the
// age-based retention applied by Record.
func NewLedger(bornAt Timestamp, maxEntries int) *Ledger {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Ledger{
		maxEntries: maxEntries,
		interval:   Interval{BornAt: bornAt},
	}
}

// Len reports the number of retained entries.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return l.count
}

// At returns the i-th retained entry in chronological order.
func (l *Ledger) At(i int) Entry {
	return l.entries[l.slot(i)]
}

// Oldest returns the earliest retained entry.
func (l *Ledger) Oldest() (Entry, bool) {
	if l == nil || l.count == 0 {
		return Entry{}, false
	}
	return l.At(0), true
}

// Newest returns the most recently recorded entry.
func (l *Ledger) Newest() (Entry, bool) {
	if l == nil || l.count == 0 {
		return Entry{}, false
	}
	return l.At(l.count - 1), true
}

// Entries returns a chronological copy of the retained entries.
func (l *Ledger) Entries() []Entry {
	if l == nil || l.count == 0 {
		return nil
	}
	out := make([]Entry, l.count)
	for i := range out {
		out[i] = l.At(i)
	}
	return out
}

// Record appends an entry and applies retention. Entries at or older than
// entry.At - window are evicted when window is positive, so the retained span
// is always strictly shorter than the window. An entry carrying the same
// timestamp as the newest one replaces it; an older entry is rejected.
func (l *Ledger) Record(entry Entry, window time.Duration) RecordResult {
	if l == nil {
		return RecordResult{Rejected: true}
	}
	result := RecordResult{}
	if newest, ok := l.Newest(); ok {
		switch {
		case entry.At < newest.At:
			result.Rejected = true
			l.fillWindow(&result)
			return result
		case entry.At == newest.At:
			l.entries[l.slot(l.count-1)] = entry
			result.Replaced = true
		default:
			l.push(entry)
		}
	} else {
		l.push(entry)
	}

	if window > 0 {
		cutoff := entry.At.Add(-window)
		for l.count > 0 && l.At(0).At <= cutoff {
			result.Evicted = append(result.Evicted, Eviction{At: l.At(0).At, Reason: EvictionExpired})
			l.popFront()
		}
	}
	if l.maxEntries > 0 {
		for l.count > l.maxEntries {
			result.Evicted = append(result.Evicted, Eviction{At: l.At(0).At, Reason: EvictionCount})
			l.popFront()
		}
	}

	l.fillWindow(&result)
	return result
}

// Lookup returns the most recent entry captured at or before cursor.
func (l *Ledger) Lookup(cursor Timestamp) (Entry, bool) {
	if l == nil || l.count == 0 {
		return Entry{}, false
	}
	idx := l.searchAfter(cursor)
	if idx == 0 {
		return Entry{}, false
	}
	return l.At(idx - 1), true
}

// TruncateAfter drops every entry captured strictly after cursor and returns
// the number of entries removed.
func (l *Ledger) TruncateAfter(cursor Timestamp) int {
	if l == nil || l.count == 0 {
		return 0
	}
	keep := l.searchAfter(cursor)
	removed := l.count - keep
	for i := keep; i < l.count; i++ {
		l.entries[l.slot(i)] = Entry{}
	}
	l.count = keep
	return removed
}

// Reset discards every entry and restarts the existence interval at now. An
// entity that is destroyed at reset time receives the empty interval
// [now, now] so no later cursor can resurrect it.
func (l *Ledger) Reset(now Timestamp) {
	if l == nil {
		return
	}
	for i := 0; i < l.count; i++ {
		l.entries[l.slot(i)] = Entry{}
	}
	l.head = 0
	l.count = 0
	destroyed := l.interval.Destroyed
	l.interval = Interval{BornAt: now}
	if destroyed {
		l.interval.Destroyed = true
		l.interval.DestroyedAt = now
	}
}

// Interval returns the entity's existence interval.
func (l *Ledger) Interval() Interval {
	if l == nil {
		return Interval{}
	}
	return l.interval
}

// BornAfter reports whether the entity did not exist yet at cursor.
func (l *Ledger) BornAfter(cursor Timestamp) bool {
	if l == nil {
		return true
	}
	return cursor < l.interval.BornAt
}

// MarkDestroyed closes the existence interval at t. Only the first call
// takes effect until ClearDestroyed reopens the interval.
func (l *Ledger) MarkDestroyed(t Timestamp) bool {
	if l == nil || l.interval.Destroyed {
		return false
	}
	l.interval.Destroyed = true
	l.interval.DestroyedAt = t
	return true
}

// ClearDestroyed reopens the existence interval after a resurrection.
func (l *Ledger) ClearDestroyed() {
	if l == nil {
		return
	}
	l.interval.Destroyed = false
	l.interval.DestroyedAt = 0
}

func (l *Ledger) slot(i int) int {
	return (l.head + i) % len(l.entries)
}

func (l *Ledger) searchAfter(cursor Timestamp) int {
	return sort.Search(l.count, func(i int) bool {
		return l.At(i).At > cursor
	})
}

func (l *Ledger) push(entry Entry) {
	if l.count == len(l.entries) {
		l.grow()
	}
	l.entries[l.slot(l.count)] = entry
	l.count++
}

func (l *Ledger) popFront() {
	l.entries[l.head] = Entry{}
	l.head = (l.head + 1) % len(l.entries)
	l.count--
	if l.count == 0 {
		l.head = 0
	}
}

func (l *Ledger) grow() {
	size := len(l.entries) * 2
	if size == 0 {
		size = 16
	}
	grown := make([]Entry, size)
	for i := 0; i < l.count; i++ {
		grown[i] = l.At(i)
	}
	l.entries = grown
	l.head = 0
}

func (l *Ledger) fillWindow(result *RecordResult) {
	result.Size = l.count
	if l.count == 0 {
		return
	}
	result.Oldest = l.At(0).At
	result.Newest = l.At(l.count - 1).At
}
