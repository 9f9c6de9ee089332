package forge

import "github.com/go-gl/mathgl/mgl32"

// Camera holds the view the primary stages render from. The host
// owns input and movement (explicitly out of scope, per spec.md §1);
// this type only turns a pose into view/projection matrices.
type Camera struct {
	Position mgl32.Vec3
	Forward  mgl32.Vec3
	Up       mgl32.Vec3

	Fov         float32 // radians
	AspectRatio float32
	ZNear       float32
	ZFar        float32
}

// NewCamera returns a camera looking down -Z with +Y up.
func NewCamera() Camera {
	return Camera{
		Forward:     mgl32.Vec3{0, 0, -1},
		Up:          mgl32.Vec3{0, 1, 0},
		Fov:         mgl32.DegToRad(60),
		AspectRatio: 16.0 / 9.0,
		ZNear:       0.1,
		ZFar:        1000,
	}
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward), c.Up)
}

func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(c.Fov, c.AspectRatio, c.ZNear, c.ZFar)
}

func (c *Camera) ViewProjectionMatrix() mgl32.Mat4 {
	return c.ProjectionMatrix().Mul4(c.ViewMatrix())
}
