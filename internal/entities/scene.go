package entities

import (
	"math"
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
)

// Scenario sizes the demo world.
type Scenario struct {
	Spawners      int           `yaml:"spawners" json:"spawners"`
	Enemies       int           `yaml:"enemies" json:"enemies"`
	SpawnInterval time.Duration `yaml:"spawn_interval" json:"spawn_interval"`
	EnemyHealth   int           `yaml:"enemy_health" json:"enemy_health"`
	EnemySpeed    float64       `yaml:"enemy_speed" json:"enemy_speed"`
	Radius        float64       `yaml:"radius" json:"radius"`
}

// DefaultScenario returns the world used by the demo server.
func DefaultScenario() Scenario {
	return Scenario{
		Spawners:      1,
		Enemies:       6,
		SpawnInterval: 400 * time.Millisecond,
		EnemyHealth:   3,
		EnemySpeed:    1.5,
		Radius:        12,
	}
}

// SceneStats counts scene members.
type SceneStats struct {
	Entities int    `json:"entities"`
	Live     int    `json:"live"`
	Released uint64 `json:"released"`
	Waves    int    `json:"waves"`
}

// Scene owns the demo entities and advances them while the engine records.
// It is not safe for concurrent use; the simulation loop is its only caller.
type Scene struct {
	engine   *rewind.Engine
	entities map[rewind.EntityID]Entity
	scenario Scenario
	released uint64
	waves    int
}

func NewScene(engine *rewind.Engine) *Scene {
	return &Scene{
		engine:   engine,
		entities: make(map[rewind.EntityID]Entity),
	}
}

// Populate places the scenario's spawners at the centre and a first wave of
// enemies on a ring around them. Later waves follow whenever every enemy is
// gone.
func (s *Scene) Populate(scenario Scenario) {
	s.scenario = scenario
	for i := 0; i < scenario.Spawners; i++ {
		s.Spawn(NewSpawner(Vec{X: float64(i), Y: 0}, scenario.SpawnInterval))
	}
	s.spawnWave()
}

// Spawn registers e with the engine and the scene.
func (s *Scene) Spawn(e Entity) rewind.EntityID {
	id := s.engine.Register(e)
	if id == rewind.InvalidID {
		return id
	}
	body := e.Base()
	body.ID = id
	body.scene = s
	s.entities[id] = e
	return id
}

// Despawn destroys id. The entity stays resolvable as a tombstone until the
// engine reports it releasable.
func (s *Scene) Despawn(id rewind.EntityID) bool {
	return s.engine.Destroy(id)
}

// Resolve follows an id reference to a live entity.
func (s *Scene) Resolve(id rewind.EntityID) (Entity, bool) {
	if id == rewind.InvalidID || !s.engine.Alive(id) {
		return nil, false
	}
	adapter, ok := s.engine.Lookup(id)
	if !ok {
		return nil, false
	}
	e, ok := adapter.(Entity)
	return e, ok
}

// Enemies lists live enemies in registration order.
func (s *Scene) Enemies() []*Enemy {
	var out []*Enemy
	for _, id := range s.engine.IDs() {
		if enemy, ok := s.entities[id].(*Enemy); ok && s.engine.Alive(id) {
			out = append(out, enemy)
		}
	}
	return out
}

func (s *Scene) NearestEnemy(pos Vec) *Enemy {
	var (
		best     *Enemy
		bestDist = math.Inf(1)
	)
	for _, enemy := range s.Enemies() {
		if d := enemy.Pos.Sub(pos).Len(); d < bestDist {
			best, bestDist = enemy, d
		}
	}
	return best
}

// Get returns the scene member registered as id, tombstones included.
func (s *Scene) Get(id rewind.EntityID) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

func (s *Scene) Len() int {
	return len(s.entities)
}

// Step advances every live entity by dt and releases tombstones that have
// fallen out of the rewind window. Step satisfies sim.World.
func (s *Scene) Step(dt time.Duration) {
	if s.engine.Mode() != rewind.ModeRecording {
		return
	}
	for _, id := range s.engine.IDs() {
		e, ok := s.entities[id]
		if !ok || !s.engine.Alive(id) {
			continue
		}
		e.Update(s, dt)
	}
	if s.scenario.Enemies > 0 && len(s.Enemies()) == 0 {
		s.spawnWave()
	}
	s.release()
}

func (s *Scene) Stats() SceneStats {
	stats := SceneStats{Entities: len(s.entities), Released: s.released, Waves: s.waves}
	for id := range s.entities {
		if s.engine.Alive(id) {
			stats.Live++
		}
	}
	return stats
}

func (s *Scene) spawnWave() {
	n := s.scenario.Enemies
	if n <= 0 {
		return
	}
	var target rewind.EntityID
	for _, id := range s.engine.IDs() {
		if _, ok := s.entities[id].(*Spawner); ok && s.engine.Alive(id) {
			target = id
			break
		}
	}
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pos := Vec{X: math.Cos(angle) * s.scenario.Radius, Y: math.Sin(angle) * s.scenario.Radius}
		s.Spawn(NewEnemy(pos, s.scenario.EnemyHealth, s.scenario.EnemySpeed, target))
	}
	s.waves++
}

func (s *Scene) release() {
	for id := range s.entities {
		if !s.engine.Releasable(id) {
			continue
		}
		s.engine.Unregister(id)
		delete(s.entities, id)
		s.released++
	}
}

func (s *Scene) forget(id rewind.EntityID) {
	delete(s.entities, id)
}
