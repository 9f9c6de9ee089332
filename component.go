package forge

import "github.com/go-gl/mathgl/mgl32"

// MeshComponent attaches a drawable mesh handle to an entity.
type MeshComponent struct {
	Mesh MeshHandle
}

// MaterialComponent is a diffuse(+specular)(+normal) material — PBR
// beyond that is explicitly out of scope.
type MaterialComponent struct {
	Diffuse   AssetId
	Specular  AssetId
	Normal    AssetId
	HasNormal bool
	Shininess float32
}

// ChildMeshComponent marks an entity's TransformComponent as local to
// ParentComponent.Parent rather than world space; stages that draw
// geometry resolve the full world transform via ResolveWorldTransform
// before building the model matrix, mirroring the original engine's
// get_full_mesh_mtransform.
type ChildMeshComponent struct{}

// ResolveWorldTransform walks ParentComponent links (at most one hop
// deep is the common case, but this follows the chain) and composes
// local transforms into a world transform.
func ResolveWorldTransform(reg *Registry, id EntityId) TransformComponent {
	local, ok := Get[TransformComponent](reg, id)
	if !ok {
		return NewTransformComponent()
	}
	parent, hasParent := Get[ParentComponent](reg, id)
	if !hasParent {
		return local
	}
	parentWorld := ResolveWorldTransform(reg, parent.Parent)
	return ComposeChild(parentWorld, local)
}

// Tag components governing shadow/culling participation.
type ShadowCasting struct{}
type AlphaTested struct{}
type CulledFromCSM struct{}

// LightGPU is the SSBO-resident representation of a light, uploaded
// by stage_deferred_shading.go's shared light list.
type LightGPU struct {
	Position    mgl32.Vec3
	Type        uint32
	Direction   mgl32.Vec3
	Range       float32
	Color       mgl32.Vec3
	Intensity   float32
	ConeAngle   float32
	ShadowIndex int32
	_pad        [2]float32
}
