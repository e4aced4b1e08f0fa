package component

import "github.com/go-gl/mathgl/mgl64"

// Transform is the world-space state of a body. Position is the center of
// the body and Scale its full extent along each axis; bodies are never rotated.
type Transform struct {
	Position mgl64.Vec3
	Scale    mgl64.Vec3
}

var TransformComponent = NewComponent[Transform]()
