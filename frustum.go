package forge

import "github.com/go-gl/mathgl/mgl32"

// Frustum is the six world-space culling planes of a view-projection
// matrix, each as (nx, ny, nz, d) with the normal pointing inward.
type Frustum struct {
	Left, Right, Bottom, Top, Near, Far mgl32.Vec4
}

// ExtractFrustum pulls the six clip planes directly out of a
// view-projection matrix's rows, the way
// voxelrt/rt/core/camera.go:ExtractFrustum does for the teacher's
// culling pass.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(i, 0), vp.At(i, 1), vp.At(i, 2), vp.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	normalize := func(p mgl32.Vec4) mgl32.Vec4 {
		n := mgl32.Vec3{p.X(), p.Y(), p.Z()}
		l := n.Len()
		if l == 0 {
			return p
		}
		return p.Mul(1 / l)
	}

	return Frustum{
		Left:   normalize(r3.Add(r0)),
		Right:  normalize(r3.Sub(r0)),
		Bottom: normalize(r3.Add(r1)),
		Top:    normalize(r3.Sub(r1)),
		Near:   normalize(r3.Add(r2)),
		Far:    normalize(r3.Sub(r2)),
	}
}

// Planes returns the six planes as an array, for iterating sphere/AABB
// tests uniformly.
func (f Frustum) Planes() [6]mgl32.Vec4 {
	return [6]mgl32.Vec4{f.Left, f.Right, f.Bottom, f.Top, f.Near, f.Far}
}

// IntersectsSphere reports whether a sphere is at least partially
// inside the frustum (standard signed-distance-to-plane test).
func (f Frustum) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes() {
		n := mgl32.Vec3{p.X(), p.Y(), p.Z()}
		dist := n.Dot(center) + p.W()
		if dist < -radius {
			return false
		}
	}
	return true
}
