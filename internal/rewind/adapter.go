// Package rewind records per-entity state every tick and lets callers preview
// and commit rewinds to any instant inside the retention window.
package rewind

import "strconv"

// EntityID identifies a registered entity. IDs are allocated monotonically and
// never reused within a process.
type EntityID uint64

// InvalidID is never returned by Register.
const InvalidID EntityID = 0

func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Snapshot is an opaque captured state. The engine stores snapshots and hands
// them back to the adapter that produced them without inspecting them.
type Snapshot any

// Adapter is the capability contract every participating entity implements.
//
// Capture must not mutate the entity. Restore must tolerate snapshots of the
// wrong shape by leaving the entity unchanged. Destroy and Resurrect are
// idempotent and must keep the entity's data intact so a later Restore or
// Capture still works.
type Adapter interface {
	Capture() Snapshot
	Restore(Snapshot)
	Destroy()
	Resurrect()
}

// Freer is implemented by adapters that release resources when a commit removes
// an entity that did not exist yet at the rewind point.
type Freer interface {
	Free()
}

// Namer is implemented by adapters that report a kind for logs and status.
type Namer interface {
	Kind() string
}

func kindOf(adapter Adapter) string {
	if namer, ok := adapter.(Namer); ok {
		return namer.Kind()
	}
	return ""
}
