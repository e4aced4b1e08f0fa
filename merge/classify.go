package merge

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/blockfuse/ecs/component"
)

// Geometry is the axis-aligned extent of a block: its center and full size.
type Geometry struct {
	Position mgl64.Vec3
	Size     mgl64.Vec3
}

// Tolerance bounds the normalized center displacement, measured in block
// widths, for two blocks to count as face adjacent.
type Tolerance struct {
	MinAlong   float64
	MaxAlong   float64
	MaxLateral float64
}

func DefaultTolerance() Tolerance {
	return Tolerance{MinAlong: 0.9, MaxAlong: 1.1, MaxLateral: 0.75}
}

var axisOrder = [...]component.Axis{component.AxisX, component.AxisY, component.AxisZ}

// Classify returns the axis along which b sits face to face with a, or
// AxisNone. Sizes must match exactly; axes are tried in X, Y, Z order and
// the first match wins.
func Classify(a, b Geometry, tol Tolerance) component.Axis {
	if a.Size != b.Size || !validSize(a.Size) {
		return component.AxisNone
	}

	d := b.Position.Sub(a.Position)
	var n mgl64.Vec3
	for i := range n {
		n[i] = math.Abs(d[i] / a.Size[i])
	}

	for _, axis := range axisOrder {
		k := axis.Index()
		// Positive comparisons so NaN never qualifies.
		if !(n[k] >= tol.MinAlong && n[k] <= tol.MaxAlong) {
			continue
		}
		if n[(k+1)%3] <= tol.MaxLateral && n[(k+2)%3] <= tol.MaxLateral {
			return axis
		}
	}
	return component.AxisNone
}

// SameSize reports whether two sizes are exactly equal.
func SameSize(a, b Geometry) bool {
	return a.Size == b.Size
}

func validSize(size mgl64.Vec3) bool {
	for _, v := range size {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
