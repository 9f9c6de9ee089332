package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTransformComponent_Model_Identity(t *testing.T) {
	tr := NewTransformComponent()
	model := tr.Model()
	assert.InDelta(t, 1.0, model.At(0, 0), 1e-5)
	assert.InDelta(t, 1.0, model.At(1, 1), 1e-5)
	assert.InDelta(t, 1.0, model.At(2, 2), 1e-5)
}

func TestTransformComponent_WorldToObject_IsInverse(t *testing.T) {
	tr := TransformComponent{
		Position: mgl32.Vec3{1, 2, 3},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{2, 2, 2},
	}

	model := tr.Model()
	inv := tr.WorldToObject()
	identity := model.Mul4(inv)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			expected := float32(0)
			if i == j {
				expected = 1
			}
			assert.InDelta(t, expected, identity.At(i, j), 1e-4)
		}
	}
}

func TestComposeChild_PreservesScaleSigns(t *testing.T) {
	parent := TransformComponent{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{-1, 1, 1},
	}
	local := TransformComponent{
		Position: mgl32.Vec3{1, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}

	world := ComposeChild(parent, local)

	assert.InDelta(t, -1, world.Position.X(), 1e-5)
	assert.InDelta(t, -1, world.Scale.X(), 1e-5)
}

func TestResolveWorldTransform_NoParent(t *testing.T) {
	reg := NewRegistry()
	id := reg.AddEntity(TransformComponent{Position: mgl32.Vec3{1, 2, 3}, Scale: mgl32.Vec3{1, 1, 1}, Rotation: mgl32.QuatIdent()})

	world := ResolveWorldTransform(reg, id)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, world.Position)
}

func TestResolveWorldTransform_WithParent(t *testing.T) {
	reg := NewRegistry()
	parent := reg.AddEntity(TransformComponent{Position: mgl32.Vec3{10, 0, 0}, Scale: mgl32.Vec3{1, 1, 1}, Rotation: mgl32.QuatIdent()})
	child := reg.AddEntity(
		TransformComponent{Position: mgl32.Vec3{1, 0, 0}, Scale: mgl32.Vec3{1, 1, 1}, Rotation: mgl32.QuatIdent()},
		ParentComponent{Parent: parent},
	)

	world := ResolveWorldTransform(reg, child)
	assert.InDelta(t, 11, world.Position.X(), 1e-5)
}
