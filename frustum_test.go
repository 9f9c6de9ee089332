package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestExtractFrustum_PlanesAreNormalized(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	vp := proj.Mul4(view)

	f := ExtractFrustum(vp)
	for _, p := range f.Planes() {
		n := mgl32.Vec3{p.X(), p.Y(), p.Z()}
		assert.InDelta(t, 1.0, n.Len(), 1e-4)
	}
}

func TestFrustum_IntersectsSphere_OriginVisible(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	f := ExtractFrustum(proj.Mul4(view))

	assert.True(t, f.IntersectsSphere(mgl32.Vec3{0, 0, 0}, 1))
}

func TestFrustum_IntersectsSphere_BehindCameraCulled(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	f := ExtractFrustum(proj.Mul4(view))

	assert.False(t, f.IntersectsSphere(mgl32.Vec3{0, 0, 20}, 0.5))
}
