package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestResolveDirectionalLight_DirectionFromRotation(t *testing.T) {
	reg := NewRegistry()
	facing := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	reg.AddEntity(
		TransformComponent{Rotation: facing, Scale: mgl32.Vec3{1, 1, 1}},
		LightComponent{Type: LightTypeDirectional, Color: [3]float32{1, 1, 1}, Intensity: 2},
	)

	direction, color, intensity := resolveDirectionalLight(&Engine{Registry: reg})

	assert.Equal(t, mgl32.Vec3{1, 1, 1}, color)
	assert.Equal(t, float32(2), intensity)
	assert.InDelta(t, 0, direction.Y(), 1e-3)
	// A 90-degree yaw rotates the -Z forward axis onto -X.
	assert.InDelta(t, -1, direction.X(), 1e-3)
	assert.InDelta(t, 0, direction.Z(), 1e-3)
}

func TestCollectSplitPointLights_PointLightHasNoDirection(t *testing.T) {
	reg := NewRegistry()
	reg.AddEntity(
		NewTransformComponent(),
		LightComponent{Type: LightTypePoint, Color: [3]float32{1, 0, 0}, Range: 10},
	)

	shadowed, plain := collectSplitPointLights(&Engine{Registry: reg})

	assert.Empty(t, shadowed)
	assert.Len(t, plain, 1)
	assert.Equal(t, int32(-1), plain[0].ShadowIndex)
	assert.Equal(t, mgl32.Vec3{}, plain[0].Direction)
}

func TestFindShadowIndex_MatchesQueryOrderAmongShadowCastersOfSameType(t *testing.T) {
	reg := NewRegistry()
	// A non-shadow-casting point light must not consume an index.
	reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypePoint})

	first := reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypePoint}, ShadowCasting{})
	second := reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypePoint}, ShadowCasting{})

	// A shadow-casting directional light must not share the point
	// light's ordinal sequence.
	reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypeDirectional}, ShadowCasting{})

	eng := &Engine{Registry: reg}
	idxFirst := findShadowIndex(eng, first, LightTypePoint)
	idxSecond := findShadowIndex(eng, second, LightTypePoint)

	assert.ElementsMatch(t, []int32{0, 1}, []int32{idxFirst, idxSecond})
	assert.NotEqual(t, idxFirst, idxSecond)
}

func TestFindShadowIndex_NotFoundReturnsNegativeOne(t *testing.T) {
	reg := NewRegistry()
	reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypePoint}, ShadowCasting{})

	other := reg.AddEntity(NewTransformComponent(), LightComponent{Type: LightTypeSpot}, ShadowCasting{})
	eng := &Engine{Registry: reg}

	assert.Equal(t, int32(-1), findShadowIndex(eng, other, LightTypePoint))
}
