// Package scene loads, populates and snapshots block scenes.
package scene

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/ecs/entity"
	"github.com/milk9111/blockfuse/prefabs"
	"gopkg.in/yaml.v3"
)

// Load reads a scene by file path or by name under prefabs/scenes, validates
// it and decodes it.
func Load(name string) (*prefabs.SceneSpec, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty scene name", ErrInvalidScene)
	}

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("scene: read %s: %w", name, err)
		}
		return Parse(data)
	}

	data, err := prefabs.Load(scenePath(name))
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", name, err)
	}
	return Parse(data)
}

func scenePath(name string) string {
	s := filepath.ToSlash(name)
	s = strings.TrimPrefix(s, "prefabs/")
	if !strings.HasPrefix(s, "scenes/") {
		s = "scenes/" + s
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		s += ".yaml"
	}
	return s
}

func Parse(data []byte) (*prefabs.SceneSpec, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var spec prefabs.SceneSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	return &spec, nil
}

// Populated lists the entities created for a scene.
type Populated struct {
	Floors []ecs.Entity
	Blocks []ecs.Entity
}

// Populate creates the scene's floors and blocks, running generators after
// the static placements. On error the entities created so far are destroyed.
func Populate(ctx context.Context, w *ecs.World, spec *prefabs.SceneSpec) (Populated, error) {
	var out Populated
	if w == nil || spec == nil {
		return out, fmt.Errorf("scene: populate: nil world or scene")
	}

	fail := func(err error) (Populated, error) {
		for _, e := range out.Floors {
			ecs.DestroyEntity(w, e)
		}
		for _, e := range out.Blocks {
			ecs.DestroyEntity(w, e)
		}
		return Populated{}, err
	}

	for i, p := range spec.Floors {
		e, err := placeFloor(w, spec, p)
		if err != nil {
			return fail(fmt.Errorf("scene %q: floors[%d]: %w", spec.Name, i, err))
		}
		out.Floors = append(out.Floors, e)
	}

	blocks := slices.Clone(spec.Blocks)
	for _, gen := range spec.Generators {
		generated, err := RunGenerator(ctx, gen)
		if err != nil {
			return fail(err)
		}
		blocks = append(blocks, generated...)
	}

	for i, p := range blocks {
		e, err := placeBlock(w, spec, p)
		if err != nil {
			return fail(fmt.Errorf("scene %q: blocks[%d]: %w", spec.Name, i, err))
		}
		out.Blocks = append(out.Blocks, e)
	}

	return out, nil
}

func placeFloor(w *ecs.World, spec *prefabs.SceneSpec, p prefabs.PlacementSpec) (ecs.Entity, error) {
	prefab := cmp.Or(p.Prefab, prefabs.FloorPrefab)
	e, err := entity.BuildEntity(w, prefab)
	if err != nil {
		return 0, err
	}
	var size mgl64.Vec3
	if p.Size != nil {
		size = p.Size.Vec3()
	}
	if err := entity.SetEntityTransform(w, e, p.Position.Vec3(), size); err != nil {
		ecs.DestroyEntity(w, e)
		return 0, err
	}
	if p.Material != "" {
		mat, err := resolveMaterial(spec, p.Material)
		if err != nil {
			ecs.DestroyEntity(w, e)
			return 0, err
		}
		if err := ecs.Add(w, e, component.MaterialComponent.Kind(), &mat); err != nil {
			ecs.DestroyEntity(w, e)
			return 0, err
		}
	}
	return e, nil
}

func placeBlock(w *ecs.World, spec *prefabs.SceneSpec, p prefabs.PlacementSpec) (ecs.Entity, error) {
	if p.Prefab != "" && p.Prefab != prefabs.BlockPrefab {
		return 0, fmt.Errorf("%w: blocks must use %s, got %q", ErrInvalidScene, prefabs.BlockPrefab, p.Prefab)
	}

	params := entity.BlockParams{
		Position: p.Position.Vec3(),
		Size:     mgl64.Vec3{1, 1, 1},
	}
	if p.Size != nil {
		params.Size = p.Size.Vec3()
	}
	if p.Velocity != nil {
		params.Velocity = p.Velocity.Vec3()
	}
	if p.Material != "" {
		mat, err := resolveMaterial(spec, p.Material)
		if err != nil {
			return 0, err
		}
		params.Material = mat
	}
	return entity.SpawnBlock(w, params)
}

func resolveMaterial(spec *prefabs.SceneSpec, name string) (component.Material, error) {
	c, ok := spec.Materials[name]
	if !ok || c == nil {
		return component.Material{}, fmt.Errorf("%w: unknown material %q", ErrInvalidScene, name)
	}
	return component.Material{Name: name, Color: c.NRGBA()}, nil
}

// Snapshot captures the live floors and blocks of w as a scene. Blocks are
// ordered by position so snapshots of the same world compare equal.
func Snapshot(w *ecs.World, name string) prefabs.SceneSpec {
	spec := prefabs.SceneSpec{
		Name:      name,
		Materials: map[string]*prefabs.YAMLColor{},
	}

	capture := func(e ecs.Entity, prefab string) prefabs.PlacementSpec {
		t, _ := ecs.Get(w, e, component.TransformComponent.Kind())
		size := prefabs.Vec3SpecOf(t.Scale)
		p := prefabs.PlacementSpec{
			Prefab:   prefab,
			Position: prefabs.Vec3SpecOf(t.Position),
			Size:     &size,
		}
		if body, ok := ecs.Get(w, e, component.PhysicsBodyComponent.Kind()); ok && body.Velocity != (mgl64.Vec3{}) {
			v := prefabs.Vec3SpecOf(body.Velocity)
			p.Velocity = &v
		}
		if mat, ok := ecs.Get(w, e, component.MaterialComponent.Kind()); ok && mat.Name != "" {
			p.Material = mat.Name
			if _, seen := spec.Materials[mat.Name]; !seen {
				spec.Materials[mat.Name] = &prefabs.YAMLColor{Color: mat.Color}
			}
		}
		return p
	}

	for _, e := range w.Query(component.FloorTagComponent.Kind(), component.TransformComponent.Kind()) {
		spec.Floors = append(spec.Floors, capture(e, prefabs.FloorPrefab))
	}
	for _, e := range w.Query(component.BlockComponent.Kind(), component.TransformComponent.Kind()) {
		spec.Blocks = append(spec.Blocks, capture(e, ""))
	}

	byPosition := func(a, b prefabs.PlacementSpec) int {
		return cmp.Or(
			cmp.Compare(a.Position.X, b.Position.X),
			cmp.Compare(a.Position.Y, b.Position.Y),
			cmp.Compare(a.Position.Z, b.Position.Z),
		)
	}
	slices.SortFunc(spec.Floors, byPosition)
	slices.SortFunc(spec.Blocks, byPosition)

	if len(spec.Materials) == 0 {
		spec.Materials = nil
	}
	return spec
}

// Save writes spec as YAML to path, creating parent directories.
func Save(path string, spec prefabs.SceneSpec) error {
	data, err := yaml.Marshal(&spec)
	if err != nil {
		return fmt.Errorf("scene: marshal %q: %w", spec.Name, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scene: save %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("scene: save %s: %w", path, err)
	}
	return nil
}
