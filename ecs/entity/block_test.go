package entity

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/prefabs"
)

func TestValidSize(t *testing.T) {
	cases := []struct {
		name string
		size mgl64.Vec3
		want bool
	}{
		{"unit", mgl64.Vec3{1, 1, 1}, true},
		{"stretched", mgl64.Vec3{4, 0.5, 2}, true},
		{"zero", mgl64.Vec3{0, 1, 1}, false},
		{"negative", mgl64.Vec3{1, -1, 1}, false},
		{"nan", mgl64.Vec3{1, 1, math.NaN()}, false},
		{"inf", mgl64.Vec3{math.Inf(1), 1, 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidSize(tc.size); got != tc.want {
				t.Fatalf("ValidSize(%v) = %v, want %v", tc.size, got, tc.want)
			}
		})
	}
}

func TestSpawnBlock(t *testing.T) {
	t.Run("defaults_from_prefab", func(t *testing.T) {
		w := ecs.NewWorld()
		e, err := SpawnBlock(w, BlockParams{Position: mgl64.Vec3{1, 2, 3}, Size: mgl64.Vec3{2, 1, 1}})
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		pos, size, ok := BlockGeometry(w, e)
		if !ok || pos != (mgl64.Vec3{1, 2, 3}) || size != (mgl64.Vec3{2, 1, 1}) {
			t.Fatalf("geometry pos=%v size=%v ok=%v", pos, size, ok)
		}
		blk, ok := ecs.Get(w, e, component.BlockComponent.Kind())
		if !ok || blk.State != component.MergeIdle || blk.MergeAxis != component.AxisNone {
			t.Fatalf("unexpected block %+v", blk)
		}
		mat, ok := ecs.Get(w, e, component.MaterialComponent.Kind())
		if !ok || mat.Name != "stone" {
			t.Fatalf("expected prefab material, got %+v", mat)
		}
		body, ok := ecs.Get(w, e, component.PhysicsBodyComponent.Kind())
		if !ok || body.Static || body.Kinematic || body.Friction != 0.8 {
			t.Fatalf("unexpected body %+v", body)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		w := ecs.NewWorld()
		mat := component.Material{Name: "moss", Color: color.NRGBA{G: 0x8f, A: 0xff}}
		e, err := SpawnBlock(w, BlockParams{
			Size:     mgl64.Vec3{1, 1, 1},
			Velocity: mgl64.Vec3{0, -3, 0},
			Material: mat,
		})
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		got, _ := ecs.Get(w, e, component.MaterialComponent.Kind())
		if *got != mat {
			t.Fatalf("material = %+v, want %+v", got, mat)
		}
		body, _ := ecs.Get(w, e, component.PhysicsBodyComponent.Kind())
		if body.Velocity != (mgl64.Vec3{0, -3, 0}) {
			t.Fatalf("velocity = %v", body.Velocity)
		}
	})

	t.Run("invalid_size", func(t *testing.T) {
		w := ecs.NewWorld()
		if _, err := SpawnBlock(w, BlockParams{Size: mgl64.Vec3{1, 0, 1}}); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("expected ErrInvalidSize, got %v", err)
		}
		if n := len(w.Entities()); n != 0 {
			t.Fatalf("failed spawn left %d entities", n)
		}
	})
}

func TestBuildEntity(t *testing.T) {
	t.Run("floor", func(t *testing.T) {
		w := ecs.NewWorld()
		e, err := BuildEntity(w, prefabs.FloorPrefab)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if !ecs.Has(w, e, component.FloorTagComponent.Kind()) || ecs.Has(w, e, component.BlockComponent.Kind()) {
			t.Fatalf("floor has wrong tags")
		}
		if _, _, ok := BlockGeometry(w, e); ok {
			t.Fatalf("floor must not report block geometry")
		}
		tr, _ := ecs.Get(w, e, component.TransformComponent.Kind())
		if tr.Scale != (mgl64.Vec3{40, 1, 40}) {
			t.Fatalf("floor scale = %v", tr.Scale)
		}
	})

	t.Run("missing_prefab", func(t *testing.T) {
		w := ecs.NewWorld()
		if _, err := BuildEntity(w, "missing.yaml"); err == nil {
			t.Fatalf("expected error")
		}
		if n := len(w.Entities()); n != 0 {
			t.Fatalf("failed build left %d entities", n)
		}
	})

	t.Run("nil_world", func(t *testing.T) {
		if _, err := BuildEntity(nil, prefabs.BlockPrefab); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestSetEntityTransformKeepsScale(t *testing.T) {
	w := ecs.NewWorld()
	e, err := SpawnBlock(w, BlockParams{Size: mgl64.Vec3{3, 1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := SetEntityTransform(w, e, mgl64.Vec3{5, 0, 0}, mgl64.Vec3{}); err != nil {
		t.Fatal(err)
	}
	pos, size, _ := BlockGeometry(w, e)
	if pos != (mgl64.Vec3{5, 0, 0}) || size != (mgl64.Vec3{3, 1, 1}) {
		t.Fatalf("pos=%v size=%v", pos, size)
	}
}
