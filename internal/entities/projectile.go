package entities

import (
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
)

const projectileHitRadius = 0.5

// Projectile flies in a straight line until it hits an enemy or its lifetime
// runs out.
type Projectile struct {
	Body
	Owner     rewind.EntityID
	Remaining time.Duration
	Damage    int
}

// ProjectileState is the captured form of a Projectile.
type ProjectileState struct {
	Body      BodyState
	Remaining time.Duration
}

func NewProjectile(owner rewind.EntityID, pos, vel Vec, lifetime time.Duration, damage int) *Projectile {
	return &Projectile{
		Body:      Body{Pos: pos, Vel: vel, Alive: true},
		Owner:     owner,
		Remaining: lifetime,
		Damage:    damage,
	}
}

func (p *Projectile) Kind() string {
	return "projectile"
}

func (p *Projectile) Capture() rewind.Snapshot {
	return ProjectileState{Body: p.captureBody(), Remaining: p.Remaining}
}

func (p *Projectile) Restore(s rewind.Snapshot) {
	state, ok := s.(ProjectileState)
	if !ok {
		return
	}
	p.restoreBody(state.Body)
	p.Remaining = state.Remaining
}

func (p *Projectile) Update(scene *Scene, dt time.Duration) {
	p.integrate(dt)
	p.Remaining -= dt
	if p.Remaining <= 0 {
		scene.Despawn(p.ID)
		return
	}
	for _, enemy := range scene.Enemies() {
		if !enemy.Alive || enemy.Pos.Sub(p.Pos).Len() > projectileHitRadius {
			continue
		}
		enemy.Hit(scene, p.Damage)
		scene.Despawn(p.ID)
		return
	}
}
