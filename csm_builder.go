package forge

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CascadeInput is one cascade's projection/view pair plus the far
// z-split it covers, the contract stage_shadow_csm.go consumes. The
// spec leaves "how cascades are built" abstract (an Open Question);
// this module resolves it by shipping CascadeBuilder as a minimal
// reference implementation rather than mandating one.
type CascadeInput struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
	ZSplit     float32
}

// CascadeBuilder frames a set of orthographic cascades, looking along
// LightDirection, around slices of the camera's depth range split by
// a Lambda blend of logarithmic and uniform distances, in the spirit
// of the original engine's
// CascadeViews construction.
type CascadeBuilder struct {
	LightDirection mgl32.Vec3 // normalized, pointing FROM the light
	NumCascades    int
	Lambda         float32 // log/uniform split blend, 0=uniform 1=log
}

func NewCascadeBuilder(lightDir mgl32.Vec3, numCascades int) *CascadeBuilder {
	return &CascadeBuilder{LightDirection: lightDir.Normalize(), NumCascades: numCascades, Lambda: 0.5}
}

// Build frames one ortho cascade per split of [near, far], centered on
// the camera position looking along LightDirection. It does not fit
// the cascade tightly to the frustum corners (that refinement is left
// to a host with scene-specific bounds); it gives every cascade a
// fixed half-extent scaled by its split distance, which is enough to
// exercise CascadedShadowMappingStage end to end.
func (b *CascadeBuilder) Build(camPos mgl32.Vec3, near, far float32) []CascadeInput {
	splits := b.splitDistances(near, far)
	cascades := make([]CascadeInput, 0, b.NumCascades)

	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(b.LightDirection.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}

	prevSplit := near
	for i := 0; i < b.NumCascades; i++ {
		zSplit := splits[i]
		halfExtent := zSplit
		eye := camPos.Sub(b.LightDirection.Mul(zSplit * 2))

		view := mgl32.LookAtV(eye, eye.Add(b.LightDirection), up)
		proj := mgl32.Ortho(-halfExtent, halfExtent, -halfExtent, halfExtent, 0.1, zSplit*4)

		cascades = append(cascades, CascadeInput{Projection: proj, View: view, ZSplit: zSplit})
		prevSplit = zSplit
		_ = prevSplit
	}
	return cascades
}

func (b *CascadeBuilder) splitDistances(near, far float32) []float32 {
	splits := make([]float32, b.NumCascades)
	for i := 0; i < b.NumCascades; i++ {
		p := float32(i+1) / float32(b.NumCascades)
		logSplit := near * float32(math.Pow(float64(far/near), float64(p)))
		uniSplit := near + (far-near)*p
		splits[i] = b.Lambda*logSplit + (1-b.Lambda)*uniSplit
	}
	return splits
}

// CascadeParams is the per-cascade data stage_shadow_csm.go uploads
// for the shading pass, matching CascadedShadowMapping.cpp exactly:
// scale = (2/proj[0][0], 2/proj[1][1], -2/proj[2][2]).
type CascadeParams struct {
	ProjView mgl32.Mat4
	Scale    mgl32.Vec3
	ZSplit   float32
}

func BuildCascadeParams(cascades []CascadeInput) []CascadeParams {
	params := make([]CascadeParams, 0, len(cascades))
	for _, c := range cascades {
		proj := c.Projection
		params = append(params, CascadeParams{
			ProjView: proj.Mul4(c.View),
			Scale: mgl32.Vec3{
				2 / proj.At(0, 0),
				2 / proj.At(1, 1),
				-2 / proj.At(2, 2),
			},
			ZSplit: c.ZSplit,
		})
	}
	return params
}
