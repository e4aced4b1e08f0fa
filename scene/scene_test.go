package scene

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs"
	"github.com/milk9111/blockfuse/ecs/component"
	"github.com/milk9111/blockfuse/prefabs"
)

func TestLoadEmbeddedScenes(t *testing.T) {
	cases := []struct {
		name       string
		floors     int
		blocks     int
		generators int
	}{
		{"demo", 1, 5, 1},
		{"scenes/demo.yaml", 1, 5, 1},
		{"tower", 1, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := Load(tc.name)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(spec.Floors) != tc.floors || len(spec.Blocks) != tc.blocks || len(spec.Generators) != tc.generators {
				t.Fatalf("got floors=%d blocks=%d generators=%d", len(spec.Floors), len(spec.Blocks), len(spec.Generators))
			}
		})
	}
}

func TestLoadMissingScene(t *testing.T) {
	if _, err := Load("no_such_scene"); err == nil {
		t.Fatalf("expected error for missing scene")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"minimal", "name: empty\n", true},
		{"block_with_size", "name: s\nblocks:\n  - position: {x: 1, y: 2, z: 3}\n    size: {x: 2, y: 1, z: 1}\n", true},
		{"missing_name", "blocks: []\n", false},
		{"unknown_field", "name: s\ngravity: 3\n", false},
		{"zero_size", "name: s\nblocks:\n  - position: {x: 0, y: 0, z: 0}\n    size: {x: 0, y: 1, z: 1}\n", false},
		{"negative_size", "name: s\nblocks:\n  - position: {x: 0, y: 0, z: 0}\n    size: {x: 1, y: -1, z: 1}\n", false},
		{"missing_position", "name: s\nblocks:\n  - material: stone\n", false},
		{"bad_color", "name: s\nmaterials:\n  stone: blue\n", false},
		{"generator_not_tengo", "name: s\ngenerators:\n  - script: row.lua\n", false},
		{"not_a_mapping", "- 1\n- 2\n", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]byte(tc.doc))
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected validation error")
				}
				if !errors.Is(err, ErrInvalidScene) {
					t.Fatalf("expected ErrInvalidScene, got %v", err)
				}
			}
		})
	}
}

func TestRunGenerator(t *testing.T) {
	t.Run("row_defaults", func(t *testing.T) {
		got, err := RunGenerator(context.Background(), prefabs.GeneratorSpec{Script: "row.tengo"})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 placements, got %d", len(got))
		}
		for i, p := range got {
			if p.Position.X != float64(i) || p.Position.Y != 0.5 || p.Position.Z != 0 {
				t.Fatalf("placement %d at %+v", i, p.Position)
			}
			if p.Size == nil || p.Size.Vec3() != (mgl64.Vec3{1, 1, 1}) {
				t.Fatalf("placement %d size %+v", i, p.Size)
			}
		}
	})

	t.Run("row_params", func(t *testing.T) {
		got, err := RunGenerator(context.Background(), prefabs.GeneratorSpec{
			Script: "row.tengo",
			Params: map[string]any{"count": 2, "start_x": -1, "gap": 0.5, "z": 2.5, "material": "moss"},
		})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 placements, got %d", len(got))
		}
		if got[1].Position.X != 0.5 || got[1].Position.Z != 2.5 || got[1].Material != "moss" {
			t.Fatalf("unexpected second placement %+v", got[1])
		}
	})

	t.Run("tower", func(t *testing.T) {
		got, err := RunGenerator(context.Background(), prefabs.GeneratorSpec{
			Script: "tower.tengo",
			Params: map[string]any{"height": 3},
		})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(got) != 3 || got[2].Position.Y != 2.5 {
			t.Fatalf("unexpected tower %+v", got)
		}
	})

	t.Run("missing_script", func(t *testing.T) {
		if _, err := RunGenerator(context.Background(), prefabs.GeneratorSpec{Script: "nope.tengo"}); err == nil {
			t.Fatalf("expected error for missing script")
		}
	})
}

func TestEmbeddedScriptsRun(t *testing.T) {
	entries, err := fs.ReadDir(prefabs.ScriptsFS, "scripts")
	if err != nil {
		t.Fatalf("read scripts: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no embedded scripts")
	}
	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			got, err := RunGenerator(context.Background(), prefabs.GeneratorSpec{Script: e.Name()})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(got) == 0 {
				t.Fatalf("script produced no blocks")
			}
		})
	}
}

func TestPlacementFromScript(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		ok   bool
	}{
		{"ints", map[string]any{"x": int64(1), "y": int64(2), "z": int64(3)}, true},
		{"floats_and_size", map[string]any{"x": 1.5, "sx": 2.0}, true},
		{"no_position", map[string]any{"sx": 1.0}, false},
		{"string_coordinate", map[string]any{"x": "1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := placementFromScript(tc.in)
			if tc.ok != (err == nil) {
				t.Fatalf("ok=%v, err=%v", tc.ok, err)
			}
		})
	}
}

func TestPopulateSnapshotRoundTrip(t *testing.T) {
	spec, err := Load("demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	w := ecs.NewWorld()
	got, err := Populate(context.Background(), w, spec)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if len(got.Floors) != 1 || len(got.Blocks) != 9 {
		t.Fatalf("expected 1 floor and 9 blocks, got %d and %d", len(got.Floors), len(got.Blocks))
	}

	for _, e := range got.Blocks {
		blk, ok := ecs.Get(w, e, component.BlockComponent.Kind())
		if !ok || blk.State != component.MergeIdle || blk.MergeAxis != component.AxisNone {
			t.Fatalf("block %v not idle: %+v", e, blk)
		}
	}
	mat, _ := ecs.Get(w, got.Blocks[1], component.MaterialComponent.Kind())
	if mat.Name != "moss" {
		t.Fatalf("expected moss material on second block, got %+v", mat)
	}

	snap := Snapshot(w, "demo-snapshot")
	if len(snap.Floors) != 1 || len(snap.Blocks) != 9 {
		t.Fatalf("snapshot has %d floors and %d blocks", len(snap.Floors), len(snap.Blocks))
	}
	for i := 1; i < len(snap.Blocks); i++ {
		if snap.Blocks[i-1].Position.X > snap.Blocks[i].Position.X {
			t.Fatalf("snapshot blocks not ordered by position")
		}
	}

	path := filepath.Join(t.TempDir(), "out", "snapshot.yaml")
	if err := Save(path, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Name != "demo-snapshot" || len(again.Blocks) != 9 || len(again.Materials) != len(snap.Materials) {
		t.Fatalf("reloaded snapshot differs: %+v", again)
	}

	w2 := ecs.NewWorld()
	if _, err := Populate(context.Background(), w2, again); err != nil {
		t.Fatalf("populate snapshot: %v", err)
	}
	if n := len(w2.Query(component.BlockComponent.Kind())); n != 9 {
		t.Fatalf("expected 9 blocks from snapshot, got %d", n)
	}
}

func TestPopulateRollsBackOnError(t *testing.T) {
	spec := &prefabs.SceneSpec{
		Name:   "broken",
		Floors: []prefabs.PlacementSpec{{Position: prefabs.Vec3Spec{Y: -0.5}}},
		Blocks: []prefabs.PlacementSpec{
			{Position: prefabs.Vec3Spec{X: 0}},
			{Position: prefabs.Vec3Spec{X: 2}, Material: "unobtainium"},
		},
	}

	w := ecs.NewWorld()
	if _, err := Populate(context.Background(), w, spec); !errors.Is(err, ErrInvalidScene) {
		t.Fatalf("expected ErrInvalidScene, got %v", err)
	}
	if n := len(w.Entities()); n != 0 {
		t.Fatalf("expected rollback to leave an empty world, got %d entities", n)
	}
}
