package merge

import (
	"log"
	"sync"

	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/ecs/entity"
)

// Outcome reports what the engine did with a contact or fusion request.
// Only OutcomeFused and OutcomeSpawnFailed change the world.
type Outcome uint8

const (
	OutcomeIgnored Outcome = iota
	OutcomeStale
	OutcomeBusy
	OutcomeSizeMismatch
	OutcomeNotAdjacent
	OutcomeInvalidAxis
	OutcomeFused
	OutcomeSpawnFailed
)

var outcomeNames = [...]string{
	OutcomeIgnored:      "ignored",
	OutcomeStale:        "stale",
	OutcomeBusy:         "busy",
	OutcomeSizeMismatch: "size_mismatch",
	OutcomeNotAdjacent:  "not_adjacent",
	OutcomeInvalidAxis:  "invalid_axis",
	OutcomeFused:        "fused",
	OutcomeSpawnFailed:  "spawn_failed",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Fusion describes a completed merge. Self initiated the contact and lends
// its material to Result.
type Fusion struct {
	Self     ecs.Entity
	Other    ecs.Entity
	Result   ecs.Entity
	Axis     component.Axis
	Inputs   [2]Geometry
	Geometry Geometry
	Material component.Material
}

// Listener is notified after each fusion, outside the engine lock.
type Listener interface {
	OnFusion(Fusion)
}

type ListenerFunc func(Fusion)

func (f ListenerFunc) OnFusion(fu Fusion) { f(fu) }

type Config struct {
	Tolerance Tolerance
	Debug     bool
}

func DefaultConfig() Config {
	return Config{Tolerance: DefaultTolerance()}
}

type Stats struct {
	Contacts      uint64
	Fusions       uint64
	Rejected      uint64
	SpawnFailures uint64
}

// SpawnFunc creates the replacement block. It defaults to entity.SpawnBlock.
type SpawnFunc func(w *ecs.World, p entity.BlockParams) (ecs.Entity, error)

// Engine detects adjacent same-sized blocks and fuses them. All calls are
// serialized by one mutex, so the check of both merge states, the commit and
// the spawn/destroy triple run as a single step with respect to any other
// contact being handled.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	spawn     SpawnFunc
	listeners []Listener
	stats     Stats
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, spawn: entity.SpawnBlock}
}

// SetConfig swaps tolerances, e.g. after a tuning reload.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetSpawnFunc replaces the block factory. Passing nil restores the default.
func (e *Engine) SetSpawnFunc(fn SpawnFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn == nil {
		fn = entity.SpawnBlock
	}
	e.spawn = fn
}

func (e *Engine) AddListener(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// participant is a contact side resolved to block capability.
type participant struct {
	entity ecs.Entity
	block  *component.Block
	geom   Geometry
}

func (e *Engine) resolve(w *ecs.World, ent ecs.Entity) (participant, Outcome, bool) {
	if !w.IsAlive(ent) {
		return participant{}, OutcomeStale, false
	}
	block, ok := ecs.Get(w, ent, component.BlockComponent.Kind())
	if !ok {
		return participant{}, OutcomeIgnored, false
	}
	t, ok := ecs.Get(w, ent, component.TransformComponent.Kind())
	if !ok {
		return participant{}, OutcomeIgnored, false
	}
	return participant{entity: ent, block: block, geom: Geometry{Position: t.Position, Size: t.Scale}}, 0, true
}

// resolvePair applies the exclusivity rule: both sides must be live idle
// blocks before anything else happens.
func (e *Engine) resolvePair(w *ecs.World, self, other ecs.Entity) (participant, participant, Outcome, bool) {
	if w == nil || self == other {
		return participant{}, participant{}, OutcomeIgnored, false
	}
	a, out, ok := e.resolve(w, self)
	if !ok {
		return participant{}, participant{}, out, false
	}
	b, out, ok := e.resolve(w, other)
	if !ok {
		return participant{}, participant{}, out, false
	}
	if a.block.State == component.MergeCommitted || b.block.State == component.MergeCommitted {
		return participant{}, participant{}, OutcomeBusy, false
	}
	return a, b, 0, true
}

// classifyLocked runs the classifier and, on a match, hands the axis to both
// blocks. It never touches the merge state.
func (e *Engine) classifyLocked(a, b participant) (component.Axis, Outcome) {
	axis := Classify(a.geom, b.geom, e.cfg.Tolerance)
	if axis == component.AxisNone {
		if !SameSize(a.geom, b.geom) {
			return axis, OutcomeSizeMismatch
		}
		return axis, OutcomeNotAdjacent
	}
	a.block.MergeAxis = axis
	b.block.MergeAxis = axis
	return axis, 0
}

// Classify resolves both handles and returns their merge axis, recording it
// on both blocks. Committed, stale or non-block participants yield AxisNone.
func (e *Engine) Classify(w *ecs.World, self, other ecs.Entity) component.Axis {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, b, _, ok := e.resolvePair(w, self, other)
	if !ok {
		return component.AxisNone
	}
	axis, _ := e.classifyLocked(a, b)
	return axis
}

// HandleContact is the contact entry point: it checks both merge states,
// classifies the pair and fuses it when adjacent.
func (e *Engine) HandleContact(w *ecs.World, self, other ecs.Entity) Outcome {
	e.mu.Lock()
	e.stats.Contacts++
	fu, out := e.handleContactLocked(w, self, other)
	listeners := e.finishLocked(out)
	debug := e.cfg.Debug
	e.mu.Unlock()

	if debug {
		log.Printf("merge: contact self=%v other=%v outcome=%s axis=%s result=%v", self, other, out, fu.Axis, fu.Result)
	}
	if out == OutcomeFused {
		notify(listeners, fu)
	}
	return out
}

func (e *Engine) handleContactLocked(w *ecs.World, self, other ecs.Entity) (Fusion, Outcome) {
	a, b, out, ok := e.resolvePair(w, self, other)
	if !ok {
		return Fusion{}, out
	}
	axis, out := e.classifyLocked(a, b)
	if axis == component.AxisNone {
		return Fusion{}, out
	}
	return e.fuseLocked(w, a, b, axis)
}

// Fuse merges self and other along axis. The axis must be the one recorded
// on both blocks and must still classify the pair's current geometry, and
// neither block may be committed; otherwise the request is dropped without
// touching the world.
func (e *Engine) Fuse(w *ecs.World, self, other ecs.Entity, axis component.Axis) (ecs.Entity, Outcome) {
	e.mu.Lock()
	fu, out := e.fuseChecked(w, self, other, axis)
	listeners := e.finishLocked(out)
	e.mu.Unlock()

	if out == OutcomeFused {
		notify(listeners, fu)
	}
	return fu.Result, out
}

func (e *Engine) fuseChecked(w *ecs.World, self, other ecs.Entity, axis component.Axis) (Fusion, Outcome) {
	if axis == component.AxisNone {
		return Fusion{}, OutcomeInvalidAxis
	}
	a, b, out, ok := e.resolvePair(w, self, other)
	if !ok {
		return Fusion{}, out
	}
	if a.block.MergeAxis != axis || b.block.MergeAxis != axis {
		return Fusion{}, OutcomeInvalidAxis
	}
	// The recorded axis may belong to another partner or to positions the
	// blocks have since left.
	switch current := Classify(a.geom, b.geom, e.cfg.Tolerance); {
	case current == axis:
	case !SameSize(a.geom, b.geom):
		return Fusion{}, OutcomeSizeMismatch
	case current == component.AxisNone:
		return Fusion{}, OutcomeNotAdjacent
	default:
		return Fusion{}, OutcomeInvalidAxis
	}
	return e.fuseLocked(w, a, b, axis)
}

// fuseLocked commits both blocks, spawns the replacement and retires the
// inputs. Once the geometry is computed there is no way back.
func (e *Engine) fuseLocked(w *ecs.World, a, b participant, axis component.Axis) (Fusion, Outcome) {
	if axis.Index() < 0 {
		log.Printf("merge: unsupported merge axis %s for %v and %v", axis, a.entity, b.entity)
		return Fusion{}, OutcomeInvalidAxis
	}
	a.block.State = component.MergeCommitted
	b.block.State = component.MergeCommitted

	geom, _ := Fuse(a.geom, b.geom, axis)

	var mat component.Material
	if m, ok := ecs.Get(w, a.entity, component.MaterialComponent.Kind()); ok {
		mat = *m
	}

	fu := Fusion{
		Self:     a.entity,
		Other:    b.entity,
		Axis:     axis,
		Inputs:   [2]Geometry{a.geom, b.geom},
		Geometry: geom,
		Material: mat,
	}

	result, err := e.spawn(w, entity.BlockParams{
		Position: geom.Position,
		Size:     geom.Size,
		Material: mat,
	})

	ecs.DestroyEntity(w, b.entity)
	ecs.DestroyEntity(w, a.entity)

	if err != nil {
		log.Printf("merge: spawn replacement for %v and %v: %v", a.entity, b.entity, err)
		return fu, OutcomeSpawnFailed
	}
	fu.Result = result
	return fu, OutcomeFused
}

func (e *Engine) finishLocked(out Outcome) []Listener {
	switch out {
	case OutcomeFused:
		e.stats.Fusions++
		return append([]Listener(nil), e.listeners...)
	case OutcomeSpawnFailed:
		e.stats.SpawnFailures++
	default:
		e.stats.Rejected++
	}
	return nil
}

func notify(listeners []Listener, fu Fusion) {
	for _, l := range listeners {
		l.OnFusion(fu)
	}
}
