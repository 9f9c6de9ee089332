package forge

import "github.com/go-gl/mathgl/mgl32"

// Basis is the fixed world-space right/up/forward frame used when
// building the six view matrices for a point light's shadow cubemap
// (stage_shadow_point.go) — it is not tied to the camera or to any one
// entity's orientation.
type Basis struct {
	X mgl32.Vec3
	Y mgl32.Vec3
	Z mgl32.Vec3
}

// WorldBasis returns the standard right-handed, Y-up world frame.
func WorldBasis() Basis {
	return Basis{
		X: mgl32.Vec3{1, 0, 0},
		Y: mgl32.Vec3{0, 1, 0},
		Z: mgl32.Vec3{0, 0, 1},
	}
}
