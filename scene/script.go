package scene

import (
	"context"
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/blockfuse/prefabs"
)

const (
	maxGeneratedBlocks = 4096
	maxGeneratorAllocs = 1 << 20
)

// RunGenerator runs a generator script and returns the placements it appended
// to the global `blocks` array. Each entry is a map with x, y, z and optional
// sx, sy, sz, vx, vy, vz, material and prefab keys.
func RunGenerator(ctx context.Context, gen prefabs.GeneratorSpec) ([]prefabs.PlacementSpec, error) {
	if strings.TrimSpace(gen.Script) == "" {
		return nil, fmt.Errorf("%w: generator without script", ErrInvalidScene)
	}

	src, err := prefabs.LoadScript(gen.Script)
	if err != nil {
		return nil, fmt.Errorf("scene: load generator %q: %w", gen.Script, err)
	}

	params := gen.Params
	if params == nil {
		params = map[string]any{}
	}

	script := tengo.NewScript(src)
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))
	script.SetMaxAllocs(maxGeneratorAllocs)
	if err := script.Add("params", params); err != nil {
		return nil, fmt.Errorf("scene: generator %q: params: %w", gen.Script, err)
	}
	if err := script.Add("blocks", []any{}); err != nil {
		return nil, fmt.Errorf("scene: generator %q: %w", gen.Script, err)
	}

	compiled, err := script.RunContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("scene: run generator %q: %w", gen.Script, err)
	}

	items := compiled.Get("blocks").Array()
	if len(items) > maxGeneratedBlocks {
		return nil, fmt.Errorf("%w: generator %q produced %d blocks (max %d)", ErrInvalidScene, gen.Script, len(items), maxGeneratedBlocks)
	}

	out := make([]prefabs.PlacementSpec, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: generator %q: blocks[%d] is %T, want map", ErrInvalidScene, gen.Script, i, item)
		}
		p, err := placementFromScript(m)
		if err != nil {
			return nil, fmt.Errorf("%w: generator %q: blocks[%d]: %v", ErrInvalidScene, gen.Script, i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func placementFromScript(m map[string]any) (prefabs.PlacementSpec, error) {
	var p prefabs.PlacementSpec

	pos, ok, err := vecFromScript(m, "x", "y", "z")
	if err != nil {
		return p, err
	}
	if !ok {
		return p, fmt.Errorf("missing position")
	}
	p.Position = pos

	size, ok, err := vecFromScript(m, "sx", "sy", "sz")
	if err != nil {
		return p, err
	}
	if ok {
		p.Size = &size
	}

	vel, ok, err := vecFromScript(m, "vx", "vy", "vz")
	if err != nil {
		return p, err
	}
	if ok {
		p.Velocity = &vel
	}

	if s, ok := m["material"].(string); ok {
		p.Material = s
	}
	if s, ok := m["prefab"].(string); ok {
		p.Prefab = s
	}
	return p, nil
}

// vecFromScript reads three numeric keys. Missing keys default to 0; ok is
// false when none are present.
func vecFromScript(m map[string]any, kx, ky, kz string) (prefabs.Vec3Spec, bool, error) {
	var v prefabs.Vec3Spec
	found := false
	for _, f := range []struct {
		key string
		dst *float64
	}{{kx, &v.X}, {ky, &v.Y}, {kz, &v.Z}} {
		raw, ok := m[f.key]
		if !ok || raw == nil {
			continue
		}
		n, ok := scriptNumber(raw)
		if !ok {
			return v, false, fmt.Errorf("%s is %T, want number", f.key, raw)
		}
		*f.dst = n
		found = true
	}
	return v, found, nil
}

func scriptNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
