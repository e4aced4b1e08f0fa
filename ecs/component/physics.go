package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
)

// PhysicsBody stores Chipmunk2D runtime data and collider configuration.
// The collider always matches Transform.Scale.
type PhysicsBody struct {
	Body       *cp.Body
	Shape      *cp.Shape
	Mass       float64
	Friction   float64
	Elasticity float64
	Static     bool
	Kinematic  bool

	// Velocity seeds the body when it is created and mirrors the simulated
	// velocity afterwards. Z is carried but not simulated.
	Velocity        mgl64.Vec3
	AngularVelocity float64
}

var PhysicsBodyComponent = NewComponent[PhysicsBody]()
