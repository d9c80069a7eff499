package entities

import (
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
)

// Spawner is a stationary turret that fires a projectile at the nearest live
// enemy every Interval.
type Spawner struct {
	Body
	Interval time.Duration
	Cooldown time.Duration
	Fired    int

	ProjectileSpeed    float64
	ProjectileLifetime time.Duration
	ProjectileDamage   int
}

// SpawnerState is the captured form of a Spawner.
type SpawnerState struct {
	Body     BodyState
	Cooldown time.Duration
	Fired    int
}

func NewSpawner(pos Vec, interval time.Duration) *Spawner {
	return &Spawner{
		Body:               Body{Pos: pos, Alive: true},
		Interval:           interval,
		Cooldown:           interval,
		ProjectileSpeed:    8,
		ProjectileLifetime: 2 * time.Second,
		ProjectileDamage:   1,
	}
}

func (s *Spawner) Kind() string {
	return "spawner"
}

func (s *Spawner) Capture() rewind.Snapshot {
	return SpawnerState{Body: s.captureBody(), Cooldown: s.Cooldown, Fired: s.Fired}
}

func (s *Spawner) Restore(snapshot rewind.Snapshot) {
	state, ok := snapshot.(SpawnerState)
	if !ok {
		return
	}
	s.restoreBody(state.Body)
	s.Cooldown = state.Cooldown
	s.Fired = state.Fired
}

func (s *Spawner) Update(scene *Scene, dt time.Duration) {
	if s.Interval <= 0 {
		return
	}
	s.Cooldown -= dt
	for s.Cooldown <= 0 {
		s.Cooldown += s.Interval
		target := scene.NearestEnemy(s.Pos)
		if target == nil {
			continue
		}
		heading := target.Pos.Sub(s.Pos).Normalized().Scale(s.ProjectileSpeed)
		scene.Spawn(NewProjectile(s.ID, s.Pos, heading, s.ProjectileLifetime, s.ProjectileDamage))
		s.Fired++
	}
}
