package rewind

import "github.com/aberter0x3f/clock-slowing-effect-sub000/internal/journal"

// record is the registry's bookkeeping for one entity. ledger is nil until the
// entity is admitted by a capture pass.
type record struct {
	id      EntityID
	kind    string
	adapter Adapter
	ledger  *journal.Ledger
	live    bool

	// destroyPending is set by a gameplay destroy and consumed by the next
	// capture pass, which closes the existence interval at its timestamp.
	destroyPending bool
	// removed is set once Unregister has been requested; the record is
	// dropped from the slices when the current pass ends.
	removed bool
}

func (r *record) admitted() bool {
	return r.ledger != nil
}

// Registry tracks every registered entity. Registrations are admitted at the
// start of the next capture pass; unregistrations requested during a pass are
// applied when the pass ends so iteration never skips or repeats an entity.
type Registry struct {
	nextID     EntityID
	maxEntries int

	byID     map[EntityID]*record
	order    []*record
	pending  []*record
	inPass   bool
	deferred []*record
}

// NewRegistry constructs an empty registry. maxEntries caps every ledger it
// creates; zero means age-based retention only.
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		maxEntries: maxEntries,
		byID:       make(map[EntityID]*record),
	}
}

// Register allocates an id for adapter. The entity is tracked immediately and
// recorded from the next capture pass on.
func (r *Registry) Register(adapter Adapter) EntityID {
	if r == nil || adapter == nil {
		return InvalidID
	}
	r.nextID++
	rec := &record{
		id:      r.nextID,
		kind:    kindOf(adapter),
		adapter: adapter,
		live:    true,
	}
	r.byID[rec.id] = rec
	r.pending = append(r.pending, rec)
	return rec.id
}

// Unregister stops tracking id and drops its ledger. It reports whether id was
// registered.
func (r *Registry) Unregister(id EntityID) bool {
	if r == nil {
		return false
	}
	rec, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	rec.removed = true
	if r.inPass {
		r.deferred = append(r.deferred, rec)
		return true
	}
	r.drop(rec)
	return true
}

// Lookup resolves id to its adapter. Unregistered ids resolve to absent.
func (r *Registry) Lookup(id EntityID) (Adapter, bool) {
	rec := r.get(id)
	if rec == nil {
		return nil, false
	}
	return rec.adapter, true
}

// Alive reports whether id is registered and not destroyed.
func (r *Registry) Alive(id EntityID) bool {
	rec := r.get(id)
	return rec != nil && rec.live
}

// Len reports the number of tracked entities, pending admissions included.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byID)
}

// IDs lists tracked entities in iteration order: admitted entities first in
// admission order, then pending registrations.
func (r *Registry) IDs() []EntityID {
	if r == nil {
		return nil
	}
	ids := make([]EntityID, 0, len(r.byID))
	for _, rec := range r.records() {
		ids = append(ids, rec.id)
	}
	return ids
}

func (r *Registry) get(id EntityID) *record {
	if r == nil {
		return nil
	}
	return r.byID[id]
}

// records returns a stable copy of the iteration order, skipping entities
// whose removal is deferred.
func (r *Registry) records() []*record {
	out := make([]*record, 0, len(r.order)+len(r.pending))
	for _, rec := range r.order {
		if !rec.removed {
			out = append(out, rec)
		}
	}
	for _, rec := range r.pending {
		if !rec.removed {
			out = append(out, rec)
		}
	}
	return out
}

// admit moves pending registrations into the admitted set with a ledger born
// at now. Entities registered while admit runs wait for the next pass.
func (r *Registry) admit(now journal.Timestamp) int {
	batch := r.pending
	r.pending = nil
	admitted := 0
	for _, rec := range batch {
		if rec.removed {
			continue
		}
		rec.ledger = journal.NewLedger(now, r.maxEntries)
		r.order = append(r.order, rec)
		admitted++
	}
	return admitted
}

func (r *Registry) beginPass() {
	r.inPass = true
}

func (r *Registry) endPass() {
	r.inPass = false
	deferred := r.deferred
	r.deferred = nil
	for _, rec := range deferred {
		r.drop(rec)
	}
}

func (r *Registry) drop(rec *record) {
	if rec.admitted() {
		r.order = removeRecord(r.order, rec)
		return
	}
	r.pending = removeRecord(r.pending, rec)
}

func removeRecord(list []*record, target *record) []*record {
	for i, rec := range list {
		if rec == target {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1]
		}
	}
	return list
}
