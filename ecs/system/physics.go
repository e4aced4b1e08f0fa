package system

import (
	"log"
	"math"
	"slices"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/prefabs"
)

const (
	collisionTypeBlock cp.CollisionType = iota + 1
	collisionTypeSolid
)

// PhysicsConfig tunes the Chipmunk space. The space simulates the XY plane;
// depth along Z is carried on the transform and only used to filter contacts.
type PhysicsConfig struct {
	Gravity      float64
	Iterations   int
	Step         float64
	DepthEpsilon float64
	Density      float64
}

func DefaultPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		Gravity:      -20,
		Iterations:   20,
		Step:         1.0 / 60.0,
		DepthEpsilon: 1e-3,
		Density:      1,
	}
}

// PhysicsConfigFromTuning maps the merge tuning file onto a PhysicsConfig,
// keeping defaults for unset fields.
func PhysicsConfigFromTuning(t prefabs.PhysicsTuning) PhysicsConfig {
	cfg := DefaultPhysicsConfig()
	cfg.Gravity = t.Gravity
	if t.Iterations > 0 {
		cfg.Iterations = t.Iterations
	}
	if t.Step > 0 {
		cfg.Step = t.Step
	}
	if t.DepthEpsilon > 0 {
		cfg.DepthEpsilon = t.DepthEpsilon
	}
	if t.Density > 0 {
		cfg.Density = t.Density
	}
	return cfg
}

type PhysicsSystem struct {
	cfg           PhysicsConfig
	space         *cp.Space
	handlersReady bool

	entities map[ecs.Entity]*bodyInfo
	shapes   map[*cp.Shape]ecs.Entity
	depth    map[ecs.Entity]depthRange

	// contacts observed during the current step, flushed after it
	pending []ecs.ContactEvent
	// block pairs whose faces met along Z as of the last step
	touching map[entityPair]struct{}
}

type bodyInfo struct {
	body   *cp.Body
	shape  *cp.Shape
	static bool
	block  bool
}

type entityPair struct {
	a, b ecs.Entity
}

func pairOf(a, b ecs.Entity) entityPair {
	if b < a {
		a, b = b, a
	}
	return entityPair{a: a, b: b}
}

type depthRange struct {
	min, max float64
}

func NewPhysicsSystem(cfg PhysicsConfig) *PhysicsSystem {
	ps := &PhysicsSystem{
		cfg:      cfg,
		entities: make(map[ecs.Entity]*bodyInfo),
		shapes:   make(map[*cp.Shape]ecs.Entity),
		depth:    make(map[ecs.Entity]depthRange),
		touching: make(map[entityPair]struct{}),
	}
	ps.space = ps.newSpace()
	return ps
}

func (ps *PhysicsSystem) newSpace() *cp.Space {
	space := cp.NewSpace()
	space.Iterations = uint(ps.cfg.Iterations)
	space.SetGravity(cp.Vector{X: 0, Y: ps.cfg.Gravity})
	return space
}

// SetConfig applies new tuning. Gravity and iterations take effect on the
// next Update; new bodies pick up the density.
func (ps *PhysicsSystem) SetConfig(cfg PhysicsConfig) {
	if ps == nil {
		return
	}
	ps.cfg = cfg
	if ps.space != nil {
		ps.space.Iterations = uint(cfg.Iterations)
		ps.space.SetGravity(cp.Vector{X: 0, Y: cfg.Gravity})
	}
}

func (ps *PhysicsSystem) Update(w *ecs.World) {
	if ps == nil || w == nil {
		return
	}

	if ps.space == nil {
		ps.space = ps.newSpace()
		ps.handlersReady = false
	}

	ps.ensureHandlers()
	ps.syncEntities(w)

	ps.pending = ps.pending[:0]
	ps.space.Step(ps.cfg.Step)

	ps.syncTransforms(w)
	ps.queryDepthContacts()
	ps.flushContacts(w)
}

func (ps *PhysicsSystem) ensureHandlers() {
	if ps.handlersReady || ps.space == nil {
		return
	}

	blockHandler := ps.space.NewCollisionHandler(collisionTypeBlock, collisionTypeBlock)
	blockHandler.UserData = ps
	blockHandler.BeginFunc = func(arb *cp.Arbiter, space *cp.Space, userData interface{}) bool {
		sys, ok := userData.(*PhysicsSystem)
		if !ok || sys == nil {
			return true
		}
		shapeA, shapeB := arb.Shapes()
		a, okA := sys.shapes[shapeA]
		b, okB := sys.shapes[shapeB]
		if !okA || !okB {
			return true
		}

		switch depthContact(sys.depth[a], sys.depth[b], sys.cfg.DepthEpsilon) {
		case depthOverlap:
			sys.queueContact(a, b)
			return true
		case depthTouching:
			// Faces meet along Z: report the contact but do not collide in XY.
			sys.queueContact(a, b)
			return false
		default:
			return false
		}
	}

	ps.handlersReady = true
}

// queueContact records the contact from both sides, as each block observes it.
func (ps *PhysicsSystem) queueContact(a, b ecs.Entity) {
	ps.pending = append(ps.pending,
		ecs.ContactEvent{Self: a, Other: b},
		ecs.ContactEvent{Self: b, Other: a},
	)
}

func (ps *PhysicsSystem) flushContacts(w *ecs.World) {
	events := w.Events()
	for _, c := range ps.pending {
		events.PushContact(c.Self, c.Other)
	}
	ps.pending = ps.pending[:0]
}

// queryDepthContacts reports block pairs whose XY footprints overlap and
// whose faces meet along Z. Coincident boxes give Chipmunk no contact points,
// so these pairs never reach the collision handler. A pair is reported once
// when it starts touching, like a BeginFunc.
func (ps *PhysicsSystem) queryDepthContacts() {
	if ps.space == nil {
		return
	}

	queued := make(map[entityPair]struct{}, len(ps.pending))
	for _, c := range ps.pending {
		queued[pairOf(c.Self, c.Other)] = struct{}{}
	}

	blocks := make([]ecs.Entity, 0, len(ps.entities))
	for e, info := range ps.entities {
		if info.block && info.shape != nil {
			blocks = append(blocks, e)
		}
	}
	slices.Sort(blocks)

	eps := ps.cfg.DepthEpsilon
	touching := make(map[entityPair]struct{}, len(ps.touching))
	var found []ecs.Entity
	for _, e := range blocks {
		bb := ps.entities[e].shape.BB()
		query := cp.BB{L: bb.L + eps, B: bb.B + eps, R: bb.R - eps, T: bb.T - eps}
		if query.L > query.R || query.B > query.T {
			continue
		}

		found = found[:0]
		ps.space.BBQuery(query, cp.SHAPE_FILTER_ALL, func(shape *cp.Shape, _ interface{}) {
			if other, ok := ps.shapes[shape]; ok && other > e {
				found = append(found, other)
			}
		}, nil)
		slices.Sort(found)

		for _, other := range found {
			if info := ps.entities[other]; info == nil || !info.block {
				continue
			}
			if depthContact(ps.depth[e], ps.depth[other], eps) != depthTouching {
				continue
			}
			key := pairOf(e, other)
			touching[key] = struct{}{}
			if _, seen := ps.touching[key]; seen {
				continue
			}
			if _, seen := queued[key]; seen {
				continue
			}
			ps.queueContact(e, other)
		}
	}
	ps.touching = touching
}

type depthRelation uint8

const (
	depthSeparate depthRelation = iota
	depthTouching
	depthOverlap
)

// depthContact classifies two Z extents: overlapping by more than eps,
// touching within eps, or apart.
func depthContact(a, b depthRange, eps float64) depthRelation {
	overlap := math.Min(a.max, b.max) - math.Max(a.min, b.min)
	switch {
	case overlap > eps:
		return depthOverlap
	case overlap >= -eps:
		return depthTouching
	default:
		return depthSeparate
	}
}

func depthOf(t *component.Transform) depthRange {
	half := t.Scale.Z() / 2
	return depthRange{min: t.Position.Z() - half, max: t.Position.Z() + half}
}

func (ps *PhysicsSystem) syncEntities(w *ecs.World) {
	if ps.space == nil {
		return
	}

	ps.cleanupEntities(w)

	entities := w.Query(component.PhysicsBodyComponent.Kind(), component.TransformComponent.Kind())
	for _, e := range entities {
		bodyComp, ok := ecs.Get(w, e, component.PhysicsBodyComponent.Kind())
		if !ok {
			continue
		}
		transform, ok := ecs.Get(w, e, component.TransformComponent.Kind())
		if !ok {
			continue
		}

		ps.depth[e] = depthOf(transform)

		if info := ps.entities[e]; info != nil {
			if bodyComp.Body == nil || bodyComp.Shape == nil {
				bodyComp.Body = info.body
				bodyComp.Shape = info.shape
			}
			continue
		}

		isBlock := ecs.Has(w, e, component.BlockComponent.Kind())
		info := ps.createBodyInfo(transform, bodyComp, isBlock)
		if info == nil {
			continue
		}

		info.block = isBlock
		ps.entities[e] = info
		ps.shapes[info.shape] = e
		bodyComp.Body = info.body
		bodyComp.Shape = info.shape
	}
}

func (ps *PhysicsSystem) createBodyInfo(transform *component.Transform, bodyComp *component.PhysicsBody, isBlock bool) *bodyInfo {
	width, height := transform.Scale.X(), transform.Scale.Y()
	if !(width > 0) || !(height > 0) {
		log.Printf("physics: skipping body with size %v", transform.Scale)
		return nil
	}
	center := cp.Vector{X: transform.Position.X(), Y: transform.Position.Y()}

	collisionType := collisionTypeSolid
	if isBlock {
		collisionType = collisionTypeBlock
	}

	if bodyComp.Static {
		bb := cp.BB{L: center.X - width/2, B: center.Y - height/2, R: center.X + width/2, T: center.Y + height/2}
		shape := cp.NewBox2(ps.space.StaticBody, bb, 0)
		shape.SetFriction(bodyComp.Friction)
		shape.SetElasticity(bodyComp.Elasticity)
		shape.SetCollisionType(collisionType)
		ps.space.AddShape(shape)
		return &bodyInfo{body: ps.space.StaticBody, shape: shape, static: true}
	}

	var body *cp.Body
	if bodyComp.Kinematic {
		body = cp.NewKinematicBody()
	} else {
		mass := bodyComp.Mass
		if mass <= 0 {
			mass = width * height * transform.Scale.Z() * ps.cfg.Density
		}
		// Infinite moment keeps blocks axis aligned.
		body = cp.NewBody(mass, math.Inf(1))
	}
	body.SetPosition(center)
	body.SetVelocity(bodyComp.Velocity.X(), bodyComp.Velocity.Y())
	body.SetAngularVelocity(0)

	shape := cp.NewBox(body, width, height, 0)
	shape.SetFriction(bodyComp.Friction)
	shape.SetElasticity(bodyComp.Elasticity)
	shape.SetCollisionType(collisionType)

	ps.space.AddBody(body)
	ps.space.AddShape(shape)

	return &bodyInfo{body: body, shape: shape}
}

func (ps *PhysicsSystem) syncTransforms(w *ecs.World) {
	entities := w.Query(component.PhysicsBodyComponent.Kind(), component.TransformComponent.Kind())
	for _, e := range entities {
		bodyComp, ok := ecs.Get(w, e, component.PhysicsBodyComponent.Kind())
		if !ok || bodyComp.Body == nil || bodyComp.Static {
			continue
		}
		transform, ok := ecs.Get(w, e, component.TransformComponent.Kind())
		if !ok {
			continue
		}
		pos := bodyComp.Body.Position()
		transform.Position[0] = pos.X
		transform.Position[1] = pos.Y
		v := bodyComp.Body.Velocity()
		bodyComp.Velocity[0] = v.X
		bodyComp.Velocity[1] = v.Y
		bodyComp.AngularVelocity = bodyComp.Body.AngularVelocity()
	}
}

func (ps *PhysicsSystem) cleanupEntities(w *ecs.World) {
	for e, info := range ps.entities {
		if w.IsAlive(e) && ecs.Has(w, e, component.PhysicsBodyComponent.Kind()) {
			continue
		}

		if info.shape != nil && ps.space != nil {
			ps.space.RemoveShape(info.shape)
			delete(ps.shapes, info.shape)
		}
		if info.body != nil && !info.static && ps.space != nil {
			ps.space.RemoveBody(info.body)
		}

		delete(ps.entities, e)
		delete(ps.depth, e)
	}

	for shape, entity := range ps.shapes {
		if !w.IsAlive(entity) {
			delete(ps.shapes, shape)
		}
	}
}

// BodyCount returns the number of entities with a body in the space.
func (ps *PhysicsSystem) BodyCount() int {
	if ps == nil {
		return 0
	}
	return len(ps.entities)
}
