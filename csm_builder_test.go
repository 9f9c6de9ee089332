package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCascadeBuilder_Build_ReturnsOnePerCascade(t *testing.T) {
	builder := NewCascadeBuilder(mgl32.Vec3{0, -1, 0}, 4)
	cascades := builder.Build(mgl32.Vec3{0, 0, 0}, 0.1, 100)

	assert.Len(t, cascades, 4)
	for i := 1; i < len(cascades); i++ {
		assert.Greater(t, cascades[i].ZSplit, cascades[i-1].ZSplit)
	}
}

func TestBuildCascadeParams_ScaleMatchesProjection(t *testing.T) {
	builder := NewCascadeBuilder(mgl32.Vec3{0, -1, 0}, 2)
	cascades := builder.Build(mgl32.Vec3{0, 0, 0}, 0.1, 100)
	params := BuildCascadeParams(cascades)

	for i, p := range params {
		proj := cascades[i].Projection
		assert.InDelta(t, 2/proj.At(0, 0), p.Scale.X(), 1e-4)
		assert.InDelta(t, 2/proj.At(1, 1), p.Scale.Y(), 1e-4)
		assert.InDelta(t, -2/proj.At(2, 2), p.Scale.Z(), 1e-4)
	}
}
