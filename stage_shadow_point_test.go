package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestSixCubeFaceViews_LooksAlongEachAxis(t *testing.T) {
	basis := WorldBasis()
	pos := mgl32.Vec3{1, 2, 3}
	views := sixCubeFaceViews(pos, basis)

	assert.Len(t, views, 6)

	// Every view matrix must map the light position to the origin
	// (LookAt eye at `pos`).
	for i, v := range views {
		transformed := v.Mul4x1(mgl32.Vec4{pos.X(), pos.Y(), pos.Z(), 1})
		origin := mgl32.Vec3{transformed.X(), transformed.Y(), transformed.Z()}
		assert.InDelta(t, 0, origin.Len(), 1e-3, "face %d", i)
	}
}

func TestPointShadowMaps_ResizeToZeroLightsAllocatesNothing(t *testing.T) {
	// ResizeIfNeeded requires a live *wgpu.Device to allocate textures,
	// so this only exercises the zero-light short-circuit, which the
	// shadow stage relies on to skip an empty render pass.
	maps := NewPointShadowMaps(nil, 1024)
	err := maps.ResizeIfNeeded(0)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), maps.LightCount)
}
