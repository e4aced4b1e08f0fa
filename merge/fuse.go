package merge

import "github.com/milk9111/blockfuse/ecs/component"

// Fuse returns the block spanning a and b along axis. The size grows by b's
// extent on the axis and the center is the midpoint of the two centers.
func Fuse(a, b Geometry, axis component.Axis) (Geometry, bool) {
	k := axis.Index()
	if k < 0 {
		return Geometry{}, false
	}
	size := a.Size
	size[k] += b.Size[k]
	return Geometry{
		Position: a.Position.Add(b.Position).Mul(0.5),
		Size:     size,
	}, true
}
