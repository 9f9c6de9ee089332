package forge

import "github.com/go-gl/mathgl/mgl32"

// TransformComponent is the scene registry's position/rotation/scale
// component, composed into a model matrix the way
// voxelrt/rt/core/transform.go composes its own Transform.
type TransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Dirty    bool
}

// NewTransformComponent returns an identity transform (unit scale, no
// rotation, origin position).
func NewTransformComponent() TransformComponent {
	return TransformComponent{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Model returns model = T * R * S.
func (t *TransformComponent) Model() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(rotate).Mul4(scale)
}

// NormalModel returns the inverse-transpose of the upper-left 3x3 of
// Model(), for transforming normals under non-uniform scale.
func (t *TransformComponent) NormalModel() mgl32.Mat3 {
	m3 := t.Model().Mat3()
	inv := m3.Inv()
	if inv == (mgl32.Mat3{}) {
		return m3
	}
	return inv.Transpose()
}

// WorldToObject returns the inverse of Model() computed component-wise
// (no general matrix inversion): invScale * invRotate * invTranslate.
func (t *TransformComponent) WorldToObject() mgl32.Mat4 {
	invScale := mgl32.Scale3D(1/t.Scale.X(), 1/t.Scale.Y(), 1/t.Scale.Z())
	invRotate := t.Rotation.Conjugate().Mat4()
	invTranslate := mgl32.Translate3D(-t.Position.X(), -t.Position.Y(), -t.Position.Z())
	return invScale.Mul4(invRotate).Mul4(invTranslate)
}

// ComposeChild combines a parent transform and a child's local
// transform into the child's world transform, preserving per-axis
// scale signs instead of decomposing the parent's matrix.
func ComposeChild(parent, local TransformComponent) TransformComponent {
	scaledLocalPos := mgl32.Vec3{
		parent.Scale.X() * local.Position.X(),
		parent.Scale.Y() * local.Position.Y(),
		parent.Scale.Z() * local.Position.Z(),
	}
	return TransformComponent{
		Position: parent.Position.Add(parent.Rotation.Rotate(scaledLocalPos)),
		Rotation: parent.Rotation.Mul(local.Rotation).Normalize(),
		Scale: mgl32.Vec3{
			parent.Scale.X() * local.Scale.X(),
			parent.Scale.Y() * local.Scale.Y(),
			parent.Scale.Z() * local.Scale.Z(),
		},
	}
}

// ParentComponent links an entity's TransformComponent to a parent
// entity whose world transform it is composed against, mirroring the
// teacher's hierarchy modules.
type ParentComponent struct {
	Parent EntityId
}
