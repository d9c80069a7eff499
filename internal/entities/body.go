// Package entities is a small demo world whose entity types exercise every
// rewind lifecycle path: spawning, destruction, resurrection and id
// references that can go stale.
package entities

import (
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
)

// Entity is a rewindable participant of a Scene.
type Entity interface {
	rewind.Adapter
	rewind.Namer
	Base() *Body
	Update(scene *Scene, dt time.Duration)
}

// Body is the state shared by every entity type. Concrete types embed it and
// compose its snapshot into their own.
type Body struct {
	ID    rewind.EntityID
	Pos   Vec
	Vel   Vec
	Alive bool

	scene *Scene
}

// BodyState is the captured form of a Body.
type BodyState struct {
	Pos Vec
	Vel Vec
}

func (b *Body) Base() *Body {
	return b
}

func (b *Body) captureBody() BodyState {
	return BodyState{Pos: b.Pos, Vel: b.Vel}
}

func (b *Body) restoreBody(state BodyState) {
	b.Pos = state.Pos
	b.Vel = state.Vel
}

func (b *Body) Destroy() {
	b.Alive = false
}

func (b *Body) Resurrect() {
	b.Alive = true
}

// Free drops the entity from its scene once a rewind removes it for good.
func (b *Body) Free() {
	if b.scene != nil {
		b.scene.forget(b.ID)
	}
}

func (b *Body) integrate(dt time.Duration) {
	b.Pos = b.Pos.Add(b.Vel.Scale(dt.Seconds()))
}
