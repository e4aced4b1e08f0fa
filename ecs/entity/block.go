package entity

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/prefabs"
)

var ErrInvalidSize = errors.New("entity: block size must be positive and finite on every axis")

// BlockParams describes a block to spawn. A zero Material keeps the prefab's.
type BlockParams struct {
	Position mgl64.Vec3
	Size     mgl64.Vec3
	Velocity mgl64.Vec3
	Material component.Material
}

// ValidSize reports whether every extent is strictly positive and finite.
func ValidSize(size mgl64.Vec3) bool {
	for _, v := range size {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SpawnBlock creates an idle block from the block prefab at the given
// position and size. The physics system attaches a dynamic body matching
// the size on its next update.
func SpawnBlock(w *ecs.World, p BlockParams) (ecs.Entity, error) {
	if !ValidSize(p.Size) {
		return 0, fmt.Errorf("spawn block %v: %w", p.Size, ErrInvalidSize)
	}

	e, err := BuildEntity(w, prefabs.BlockPrefab)
	if err != nil {
		return 0, fmt.Errorf("spawn block: %w", err)
	}

	if err := SetEntityTransform(w, e, p.Position, p.Size); err != nil {
		ecs.DestroyEntity(w, e)
		return 0, fmt.Errorf("spawn block: set transform: %w", err)
	}

	if body, ok := ecs.Get(w, e, component.PhysicsBodyComponent.Kind()); ok {
		body.Static = false
		body.Kinematic = false
		body.Velocity = p.Velocity
		body.AngularVelocity = 0
	}

	if p.Material != (component.Material{}) {
		mat := p.Material
		if err := ecs.Add(w, e, component.MaterialComponent.Kind(), &mat); err != nil {
			ecs.DestroyEntity(w, e)
			return 0, fmt.Errorf("spawn block: set material: %w", err)
		}
	}

	return e, nil
}

// BlockGeometry returns the position and size of a live block.
func BlockGeometry(w *ecs.World, e ecs.Entity) (position, size mgl64.Vec3, ok bool) {
	if !ecs.Has(w, e, component.BlockComponent.Kind()) {
		return position, size, false
	}
	t, ok := ecs.Get(w, e, component.TransformComponent.Kind())
	if !ok {
		return position, size, false
	}
	return t.Position, t.Scale, true
}
