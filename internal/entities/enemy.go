package entities

import (
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
)

// Enemy walks toward its target. The target is held by id and resolved through
// the engine every update, so a target freed by a rewind reads as lost.
type Enemy struct {
	Body
	Health int
	Speed  float64
	Target rewind.EntityID
}

// EnemyState is the captured form of an Enemy.
type EnemyState struct {
	Body   BodyState
	Health int
	Target rewind.EntityID
}

func NewEnemy(pos Vec, health int, speed float64, target rewind.EntityID) *Enemy {
	return &Enemy{
		Body:   Body{Pos: pos, Alive: true},
		Health: health,
		Speed:  speed,
		Target: target,
	}
}

func (e *Enemy) Kind() string {
	return "enemy"
}

func (e *Enemy) Capture() rewind.Snapshot {
	return EnemyState{Body: e.captureBody(), Health: e.Health, Target: e.Target}
}

func (e *Enemy) Restore(s rewind.Snapshot) {
	state, ok := s.(EnemyState)
	if !ok {
		return
	}
	e.restoreBody(state.Body)
	e.Health = state.Health
	e.Target = state.Target
}

// Hit applies damage and despawns the enemy when its health runs out.
func (e *Enemy) Hit(scene *Scene, damage int) {
	e.Health -= damage
	if e.Health <= 0 {
		e.Health = 0
		scene.Despawn(e.ID)
	}
}

func (e *Enemy) Update(scene *Scene, dt time.Duration) {
	target, ok := scene.Resolve(e.Target)
	if !ok {
		// Target lost: stand still until a new one is assigned.
		e.Target = rewind.InvalidID
		e.Vel = Vec{}
		return
	}
	e.Vel = target.Base().Pos.Sub(e.Pos).Normalized().Scale(e.Speed)
	e.integrate(dt)
}
