package merge

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs/component"
)

func unitAt(x, y, z float64) Geometry {
	return Geometry{Position: mgl64.Vec3{x, y, z}, Size: mgl64.Vec3{1, 1, 1}}
}

func TestClassify(t *testing.T) {
	origin := unitAt(0, 0, 0)
	cases := []struct {
		name string
		a, b Geometry
		want component.Axis
	}{
		{"exact_x", origin, unitAt(1, 0, 0), component.AxisX},
		{"exact_negative_x", origin, unitAt(-1, 0, 0), component.AxisX},
		{"exact_y", origin, unitAt(0, 1, 0), component.AxisY},
		{"exact_z", origin, unitAt(0, 0, -1), component.AxisZ},
		{"within_upper_tolerance", origin, unitAt(1.09, 0, 0), component.AxisX},
		{"beyond_upper_tolerance", origin, unitAt(1.11, 0, 0), component.AxisNone},
		{"at_lower_tolerance", origin, unitAt(0.9, 0, 0), component.AxisX},
		{"below_lower_tolerance", origin, unitAt(0.85, 0, 0), component.AxisNone},
		{"lateral_offset_rejected", origin, unitAt(1, 0.8, 0), component.AxisNone},
		{"lateral_offset_at_limit", origin, unitAt(1, 0.75, -0.75), component.AxisX},
		{"diagonal_corner", origin, unitAt(1, 1, 0), component.AxisNone},
		{"same_position", origin, origin, component.AxisNone},
		{"far_apart", origin, unitAt(5, 0, 0), component.AxisNone},
		{
			name: "scaled_blocks",
			a:    Geometry{Position: mgl64.Vec3{0, 0, 0}, Size: mgl64.Vec3{2, 1, 3}},
			b:    Geometry{Position: mgl64.Vec3{0, 0, 3}, Size: mgl64.Vec3{2, 1, 3}},
			want: component.AxisZ,
		},
		{
			name: "scaled_blocks_lateral_in_block_widths",
			a:    Geometry{Position: mgl64.Vec3{0, 0, 0}, Size: mgl64.Vec3{4, 1, 1}},
			b:    Geometry{Position: mgl64.Vec3{2.5, 1, 0}, Size: mgl64.Vec3{4, 1, 1}},
			want: component.AxisY,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.a, tc.b, DefaultTolerance()); got != tc.want {
				t.Fatalf("Classify(%v, %v) = %s, want %s", tc.a.Position, tc.b.Position, got, tc.want)
			}
		})
	}
}

func TestClassifySizeGate(t *testing.T) {
	tenth, fifth := 0.1, 0.2
	sizes := []mgl64.Vec3{
		{1, 1, 2},
		{2, 1, 1},
		{1, 1.0000001, 1},
		{tenth + fifth, 1, 1},
	}
	positions := []mgl64.Vec3{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1.5, 0, 0}, {0, 0, 0},
	}
	a := unitAt(0, 0, 0)
	a.Size = mgl64.Vec3{0.3, 1, 1}
	for _, size := range sizes[:3] {
		for _, pos := range positions {
			b := Geometry{Position: pos, Size: size}
			if got := Classify(unitAt(0, 0, 0), b, DefaultTolerance()); got != component.AxisNone {
				t.Fatalf("size %v at %v: got %s, want none", size, pos, got)
			}
		}
	}

	// 0.1+0.2 is not 0.3 in floating point; equality stays exact.
	b := Geometry{Position: mgl64.Vec3{0.3, 0, 0}, Size: sizes[3]}
	if got := Classify(a, b, DefaultTolerance()); got != component.AxisNone {
		t.Fatalf("near-equal sizes classified as %s", got)
	}
}

func TestClassifyDegenerateGeometry(t *testing.T) {
	cases := []struct {
		name string
		size mgl64.Vec3
		pos  mgl64.Vec3
	}{
		{"zero_size", mgl64.Vec3{0, 1, 1}, mgl64.Vec3{0, 0, 0}},
		{"negative_size", mgl64.Vec3{-1, 1, 1}, mgl64.Vec3{-1, 0, 0}},
		{"nan_size", mgl64.Vec3{math.NaN(), 1, 1}, mgl64.Vec3{1, 0, 0}},
		{"inf_size", mgl64.Vec3{math.Inf(1), 1, 1}, mgl64.Vec3{1, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Geometry{Size: tc.size}
			b := Geometry{Position: tc.pos, Size: tc.size}
			if got := Classify(a, b, DefaultTolerance()); got != component.AxisNone {
				t.Fatalf("got %s, want none", got)
			}
		})
	}

	t.Run("nan_position", func(t *testing.T) {
		if got := Classify(unitAt(0, 0, 0), unitAt(math.NaN(), 0, 0), DefaultTolerance()); got != component.AxisNone {
			t.Fatalf("got %s, want none", got)
		}
		if got := Classify(unitAt(0, 0, 0), unitAt(1, math.NaN(), 0), DefaultTolerance()); got != component.AxisNone {
			t.Fatalf("got %s, want none", got)
		}
		if got := Classify(unitAt(math.NaN(), 0, 0), unitAt(0, 0, 1), DefaultTolerance()); got != component.AxisNone {
			t.Fatalf("got %s, want none", got)
		}
		if got := Classify(unitAt(0, 0, 0), unitAt(math.Inf(1), 0, 0), DefaultTolerance()); got != component.AxisNone {
			t.Fatalf("got %s, want none", got)
		}
	})
}

func TestClassifyPriorityOrder(t *testing.T) {
	// Loose enough that one displacement satisfies several axes at once.
	loose := Tolerance{MinAlong: 0.5, MaxAlong: 1.5, MaxLateral: 1.2}

	cases := []struct {
		name string
		b    Geometry
		want component.Axis
	}{
		{"x_over_y", unitAt(1, 1, 0), component.AxisX},
		{"x_over_y_and_z", unitAt(1, 1, 1), component.AxisX},
		{"y_over_z", unitAt(0, 1, 1), component.AxisY},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				if got := Classify(unitAt(0, 0, 0), tc.b, loose); got != tc.want {
					t.Fatalf("run %d: got %s, want %s", i, got, tc.want)
				}
			}
		})
	}
}

func TestFuse(t *testing.T) {
	cases := []struct {
		name     string
		a, b     Geometry
		axis     component.Axis
		wantPos  mgl64.Vec3
		wantSize mgl64.Vec3
	}{
		{"unit_x", unitAt(0, 0, 0), unitAt(1, 0, 0), component.AxisX, mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{2, 1, 1}},
		{"unit_y", unitAt(0, 0, 0), unitAt(0, -1, 0), component.AxisY, mgl64.Vec3{0, -0.5, 0}, mgl64.Vec3{1, 2, 1}},
		{"unit_z", unitAt(2, 0, 0), unitAt(2, 0, 1), component.AxisZ, mgl64.Vec3{2, 0, 0.5}, mgl64.Vec3{1, 1, 2}},
		{
			name:     "wide_blocks_x",
			a:        Geometry{Position: mgl64.Vec3{1, 0.5, 0}, Size: mgl64.Vec3{2, 1, 1}},
			b:        Geometry{Position: mgl64.Vec3{3, 0.5, 0}, Size: mgl64.Vec3{2, 1, 1}},
			axis:     component.AxisX,
			wantPos:  mgl64.Vec3{2, 0.5, 0},
			wantSize: mgl64.Vec3{4, 1, 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Fuse(tc.a, tc.b, tc.axis)
			if !ok {
				t.Fatalf("Fuse reported failure")
			}
			if !got.Position.ApproxEqual(tc.wantPos) || got.Size != tc.wantSize {
				t.Fatalf("got pos=%v size=%v, want pos=%v size=%v", got.Position, got.Size, tc.wantPos, tc.wantSize)
			}
		})
	}

	t.Run("no_axis", func(t *testing.T) {
		if _, ok := Fuse(unitAt(0, 0, 0), unitAt(1, 0, 0), component.AxisNone); ok {
			t.Fatalf("Fuse with AxisNone must not run")
		}
	})
}
