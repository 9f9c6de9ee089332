package forge

import "github.com/go-gl/mathgl/mgl32"

// objectUniforms is the per-draw uniform block every geometry pass
// (deferred, forward) writes before issuing a mesh's draw call, the
// same per-entity update/draw rhythm as mod_client.go's rendering():
// write the uniform buffer, then record the draw against it.
type objectUniforms struct {
	MVP         mgl32.Mat4
	Model       mgl32.Mat4
	NormalModel mgl32.Mat4
}

// depthOnlyUniforms is DepthOnlyPipeline.Render's (drawCascade's)
// per-draw uniform block: shadow passes only ever need the light-space MVP.
type depthOnlyUniforms struct {
	MVP mgl32.Mat4
}

// pointDepthUniforms is PointDepthPipeline's per-draw uniform block.
// Model travels alongside MVP so the fragment stage can recover each
// fragment's world position and measure its linear distance to the
// light rather than relying on the rasterizer's non-linear clip-space
// depth; LightPosFar packs the light position and far plane into one
// vec4 so the struct stays 16-byte aligned without an explicit pad.
type pointDepthUniforms struct {
	MVP         mgl32.Mat4
	Model       mgl32.Mat4
	LightPosFar mgl32.Vec4
}

// mat3ToMat4 embeds m's columns into the upper-left 3x3 of a 4x4
// matrix with an identity fourth row/column, so NormalModel can travel
// through a uniform buffer the same way Model does.
func mat3ToMat4(m mgl32.Mat3) mgl32.Mat4 {
	return mgl32.Mat4{
		m[0], m[1], m[2], 0,
		m[3], m[4], m[5], 0,
		m[6], m[7], m[8], 0,
		0, 0, 0, 1,
	}
}
